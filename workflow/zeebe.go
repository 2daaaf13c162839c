package workflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

var _ Engine = &Zeebe{}

// ZeebeOptions is the immutable configuration of Zeebe
type ZeebeOptions struct {
	GatewayAddress string
	Plaintext      bool
	// MessageTTL is how long the broker buffers a published message that no instance has consumed yet
	MessageTTL time.Duration
	Logger     *zap.Logger
}

// Zeebe implements Engine with the Zeebe gRPC gateway
type Zeebe struct {
	ZeebeOptions
	client zbc.Client
}

// NewZeebe connects to the Zeebe gateway
func NewZeebe(option ZeebeOptions) (*Zeebe, error) {
	if option.GatewayAddress == "" {
		return nil, fmt.Errorf("empty GatewayAddress is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	client, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         option.GatewayAddress,
		UsePlaintextConnection: option.Plaintext,
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Zeebe gateway")
	}
	return &Zeebe{
		ZeebeOptions: option,
		client:       client,
	}, nil
}

// Close releases the gRPC connection
func (z *Zeebe) Close() error {
	return z.client.Close()
}

// StartProcess creates an instance of the latest deployed version of processID and returns its key
func (z *Zeebe) StartProcess(ctx context.Context, processID string, vars Variables) (string, error) {
	if vars == nil {
		vars = Variables{}
	}
	cmd, err := z.client.NewCreateInstanceCommand().
		BPMNProcessId(processID).
		LatestVersion().
		VariablesFromMap(vars)
	if err != nil {
		return "", extErrors.Wrap(err, "Cannot encode process variables")
	}
	res, err := cmd.Send(ctx)
	if err != nil {
		return "", extErrors.Wrapf(err, "Cannot start process %s", processID)
	}
	key := strconv.FormatInt(res.GetProcessInstanceKey(), 10)
	z.Logger.Info("Started process instance",
		zap.String("ProcessID", processID),
		zap.String("ProcessInstanceKey", key),
	)
	return key, nil
}

// PublishMessage publishes name correlated by correlationKey
func (z *Zeebe) PublishMessage(ctx context.Context, name, correlationKey string, vars Variables) error {
	if correlationKey == "" {
		return ErrEmptyCorrelationKey
	}
	if vars == nil {
		vars = Variables{}
	}
	cmd, err := z.client.NewPublishMessageCommand().
		MessageName(name).
		CorrelationKey(correlationKey).
		TimeToLive(z.MessageTTL).
		VariablesFromMap(vars)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode message variables")
	}
	if _, err := cmd.Send(ctx); err != nil {
		return extErrors.Wrapf(err, "Cannot publish message %s", name)
	}
	z.Logger.Debug("Published message",
		zap.String("MessageName", name),
		zap.String("CorrelationKey", correlationKey),
	)
	return nil
}

package workflow

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type fakeGateway struct {
	pb.UnimplementedGatewayServer

	mu       sync.Mutex
	creates  []*pb.CreateProcessInstanceRequest
	messages []*pb.PublishMessageRequest
}

func (f *fakeGateway) CreateProcessInstance(ctx context.Context, req *pb.CreateProcessInstanceRequest) (*pb.CreateProcessInstanceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	return &pb.CreateProcessInstanceResponse{
		ProcessInstanceKey: 2251799813685255,
		BpmnProcessId:      req.GetBpmnProcessId(),
	}, nil
}

func (f *fakeGateway) PublishMessage(ctx context.Context, req *pb.PublishMessageRequest) (*pb.PublishMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, req)
	return &pb.PublishMessageResponse{Key: 1}, nil
}

func newTestZeebe(t *testing.T) (*Zeebe, *fakeGateway) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fake := &fakeGateway{}
	srv := grpc.NewServer()
	pb.RegisterGatewayServer(srv, fake)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	z, err := NewZeebe(ZeebeOptions{
		GatewayAddress: lis.Addr().String(),
		Plaintext:      true,
		MessageTTL:     time.Hour,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { z.Close() })
	return z, fake
}

func TestNewZeebeValidation(t *testing.T) {
	_, err := NewZeebe(ZeebeOptions{Logger: zap.NewNop()})
	assert.Error(t, err)
	_, err = NewZeebe(ZeebeOptions{GatewayAddress: "127.0.0.1:26500"})
	assert.Error(t, err)
}

func TestStartProcess(t *testing.T) {
	z, fake := newTestZeebe(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key, err := z.StartProcess(ctx, ProcessBilling, Variables{
		"subscriptionId": "s1",
		"amount":         "29.90",
	})
	require.NoError(t, err)
	assert.Equal(t, "2251799813685255", key)

	require.Len(t, fake.creates, 1)
	req := fake.creates[0]
	assert.Equal(t, ProcessBilling, req.GetBpmnProcessId())
	assert.Equal(t, int32(-1), req.GetVersion())

	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(req.GetVariables()), &vars))
	assert.Equal(t, "s1", vars["subscriptionId"])
}

func TestPublishMessage(t *testing.T) {
	z, fake := newTestZeebe(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := z.PublishMessage(ctx, MessageSubscriptionCancelled, "inst_55", Variables{"status": "canceled"})
	require.NoError(t, err)

	require.Len(t, fake.messages, 1)
	msg := fake.messages[0]
	assert.Equal(t, MessageSubscriptionCancelled, msg.GetName())
	assert.Equal(t, "inst_55", msg.GetCorrelationKey())
	assert.Equal(t, time.Hour.Milliseconds(), msg.GetTimeToLive())

	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msg.GetVariables()), &vars))
	assert.Equal(t, "canceled", vars["status"])
}

func TestPublishMessageEmptyKey(t *testing.T) {
	z, fake := newTestZeebe(t)

	err := z.PublishMessage(context.Background(), MessagePaymentSuccess, "", nil)
	assert.ErrorIs(t, err, ErrEmptyCorrelationKey)
	assert.Len(t, fake.messages, 0)
}

package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutBrokers(t *testing.T) {
	p, err := New(nil, "storefront.order-status")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.PublishOrderStatus(context.Background(), OrderStatusChanged{OrderID: 1}))
	p.Close()
}

func TestNewKafkaPublisher(t *testing.T) {
	// the client connects lazily, so no broker is needed to build it
	p, err := New([]string{"127.0.0.1:1"}, "storefront.order-status")
	require.NoError(t, err)
	defer p.Close()

	kp, ok := p.(*KafkaPublisher)
	require.True(t, ok)
	assert.Equal(t, "storefront.order-status", kp.topic)
}

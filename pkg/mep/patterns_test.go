package mep

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTwoWay(t *testing.T) {
	assert.False(t, IsTwoWay(OneWay))
	assert.True(t, IsTwoWay(TwoWay))
}

func TestIsPullCapable(t *testing.T) {
	assert.True(t, IsPullCapable(Pull))
	assert.True(t, IsPullCapable(PushAndPull))
	assert.True(t, IsPullCapable(PullAndPush))
	assert.False(t, IsPullCapable(Push))
	assert.False(t, IsPullCapable(Sync))
}

func TestAllowsUserMessageReply(t *testing.T) {
	assert.True(t, AllowsUserMessageReply(TwoWay, Sync))
	assert.True(t, AllowsUserMessageReply(TwoWay, PushAndPull))
	assert.False(t, AllowsUserMessageReply(TwoWay, PushAndPush))
	assert.False(t, AllowsUserMessageReply(OneWay, Sync))
}

func TestIsAsynchronousLeg(t *testing.T) {
	assert.True(t, IsAsynchronousLeg(TwoWay, PushAndPush, 1))
	assert.True(t, IsAsynchronousLeg(TwoWay, PullAndPush, 1))
	assert.False(t, IsAsynchronousLeg(TwoWay, PushAndPush, 2))
	assert.False(t, IsAsynchronousLeg(TwoWay, Sync, 1))
	assert.False(t, IsAsynchronousLeg(OneWay, PushAndPush, 1))
}

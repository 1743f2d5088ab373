package rlog

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
)

func TestGFallsBackToDefaultLogger(t *testing.T) {
	got := G(context.Background())
	assert.Assert(t, got == logrus.FieldLogger(L))
}

func TestWithLoggerRoundTrips(t *testing.T) {
	custom := logrus.New()
	ctx := WithLogger(context.Background(), custom)
	got := G(ctx)
	assert.Assert(t, got == logrus.FieldLogger(custom))
}

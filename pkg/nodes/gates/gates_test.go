package gates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/nodes"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

func TestReviewPassesInputThrough(t *testing.T) {
	review := NewReview()
	assert.Equal(t, workflow.KindReview, review.Kind())
	assert.True(t, review.Kind().IsGate())
	assert.Zero(t, review.CreditCost(nil))

	output, err := review.Execute(context.Background(), nil,
		map[string]any{"input": "data:image/png;base64,AAA"}, nodes.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AAA", output["output"])
}

func TestPickStagesBatchWithFirstItemDefault(t *testing.T) {
	pick := NewPick()
	assert.True(t, pick.Kind().IsGate())
	assert.Zero(t, pick.CreditCost(nil))

	batch := []string{"img-0", "img-1", "img-2"}
	output, err := pick.Execute(context.Background(), nil,
		map[string]any{"images": batch}, nodes.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, batch, output["images"])
	assert.Equal(t, "img-0", output["image"])
}

func TestPickHandlesUntypedBatch(t *testing.T) {
	pick := NewPick()
	output, err := pick.Execute(context.Background(), nil,
		map[string]any{"images": []any{"a", "b"}}, nodes.RunContext{})
	require.NoError(t, err)
	assert.Equal(t, "a", output["image"])
}

func TestPickEmptyBatchHasNoDefault(t *testing.T) {
	pick := NewPick()
	output, err := pick.Execute(context.Background(), nil,
		map[string]any{"images": []string{}}, nodes.RunContext{})
	require.NoError(t, err)
	_, hasImage := output["image"]
	assert.False(t, hasImage)
}

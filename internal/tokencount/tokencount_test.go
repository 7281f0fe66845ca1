package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

func TestCounter_CountText_Empty(t *testing.T) {
	c := New()
	assert.Equal(t, 0, c.CountText(""))
}

func TestCounter_CountText_NonEmptyIsPositive(t *testing.T) {
	c := New()
	assert.Greater(t, c.CountText("hello world, this is a test sentence."), 0)
}

func TestCounter_CountRequestInput_IncludesSystemAndMessages(t *testing.T) {
	c := New()

	req := &uif.Request{
		System: []uif.Content{{Kind: uif.ContentText, Text: "be concise"}},
		Messages: []uif.Message{{
			Role:    uif.RoleUser,
			Content: []uif.Content{{Kind: uif.ContentText, Text: "hello there, how are you today?"}},
		}},
	}

	withMessage := c.CountRequestInput(req)

	bare := &uif.Request{Messages: []uif.Message{{Role: uif.RoleUser}}}
	withoutMessage := c.CountRequestInput(bare)

	assert.Greater(t, withMessage, withoutMessage)
}

func TestCounter_Reconcile_ReportedUsageWins(t *testing.T) {
	c := New()
	reported := uif.Usage{InputTokens: 10, OutputTokens: 20}

	got := c.Reconcile(reported, 999, "irrelevant output text")
	assert.Equal(t, reported, got)
}

func TestCounter_Reconcile_FallsBackToEstimateWhenUnreported(t *testing.T) {
	c := New()

	got := c.Reconcile(uif.Usage{}, 42, "some generated output")
	assert.Equal(t, 42, got.InputTokens)
	assert.Greater(t, got.OutputTokens, 0)
}

package llmclient

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldhq/fold/internal/foldxerr"
)

type fakeProvider struct {
	name       string
	summary    *CodeSummary
	err        error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) SummarizeCode(ctx context.Context, content, filePath, language string) (*CodeSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}
func (f *fakeProvider) AnalyseContent(ctx context.Context, content string) (*ContentAnalysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ContentAnalysis{Context: "ok"}, nil
}
func (f *fakeProvider) SuggestEvolution(ctx context.Context, newExcerpt string, neighbors []NeighborRef) (*Evolution, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Evolution{ShouldEvolve: false}, nil
}

func TestTruncateUTF8SafeNeverSplitsARune(t *testing.T) {
	s := "héllo wörld" // contains multi-byte runes
	truncated := TruncateUTF8Safe(s, 5)
	assert.LessOrEqual(t, len(truncated), 5)
	// re-encoding must round trip without a replacement rune
	assert.True(t, len(truncated) == 0 || truncated[len(truncated)-1] != 0)
	assert.True(t, utf8.ValidString(truncated))
}

func TestClientFallsBackOnTransportError(t *testing.T) {
	bad := &fakeProvider{name: "bad", err: assertErr("boom")}
	good := &fakeProvider{name: "good", summary: &CodeSummary{Title: "t"}}
	c := New(nil, bad, good)

	out, err := c.SummarizeCode(context.Background(), "package main", "main.go", "go")
	require.NoError(t, err)
	assert.Equal(t, "t", out.Title)
}

func TestClientReturnsLlmExhaustedWhenAllFail(t *testing.T) {
	bad := &fakeProvider{name: "bad", err: assertErr("boom")}
	c := New(nil, bad)

	_, err := c.SummarizeCode(context.Background(), "x", "f.go", "go")
	require.Error(t, err)
	assert.True(t, foldxerr.Is(err, foldxerr.LlmExhausted))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestAsStatusErrorRecognizesAnthropicSDKError(t *testing.T) {
	se := asStatusError(&anthropic.Error{StatusCode: 400})
	require.NotNil(t, se)
	assert.Equal(t, 400, se.StatusCode)
}

func TestAsStatusErrorNilForUnrelatedError(t *testing.T) {
	assert.Nil(t, asStatusError(assertErr("boom")))
}

package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParametersOutput
	getErr error
	lastIn *ssm.GetParametersInput
}

func (f *fakeAPI) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.lastIn = in
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func param(name, value string) types.Parameter {
	return types.Parameter{Name: strPtr(name), Value: strPtr(value)}
}

func TestGetParameters_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParametersOutput{Parameters: []types.Parameter{
		param("/widget/agent/base_url", "https://hooks.example.com"),
		param("/widget/agent/path", "/webhook/chat"),
	}}}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameters(context.Background(), " /widget/agent/base_url ", "/widget/agent/path")
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"/widget/agent/base_url": "https://hooks.example.com",
		"/widget/agent/path":     "/webhook/chat",
	}, v)
	require.Equal(t, []string{"/widget/agent/base_url", "/widget/agent/path"}, api.lastIn.Names)
	require.True(t, *api.lastIn.WithDecryption)
}

func TestGetParameters_InvalidParameters(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParametersOutput{InvalidParameters: []string{"/b", "/a"}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameters(context.Background(), "/a", "/b")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found: /a, /b")
}

func TestGetParameters_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParametersOutput{Parameters: []types.Parameter{{Name: strPtr("p")}}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameters(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameters_MissingFromResponse(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParametersOutput{Parameters: []types.Parameter{param("a", "1")}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameters(context.Background(), "a", "b")
	require.Error(t, err)
	require.Contains(t, err.Error(), `"b" missing from response`)
}

func TestGetParameters_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameters(context.Background(), "p")
	require.Error(t, err)
	require.ErrorContains(t, err, "boom")
}

func TestGetParameters_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameters(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameters_NameValidation(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)

	_, err = client.GetParameters(context.Background())
	require.ErrorContains(t, err, "at least one")

	_, err = client.GetParameters(context.Background(), "a", "  ")
	require.ErrorContains(t, err, "required")

	names := make([]string, maxNamesPerCall+1)
	for i := range names {
		names[i] = "n"
	}
	_, err = client.GetParameters(context.Background(), names...)
	require.ErrorContains(t, err, "at most")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

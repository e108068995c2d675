package paramstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// maxNamesPerCall is the SSM GetParameters batch limit.
const maxNamesPerCall = 10

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameters(ctx context.Context, in *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// Getter is the interface that wraps GetParameters. Config resolution depends
// on it rather than on *Client so it stays testable without AWS.
type Getter interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameters fetches all names in a single decrypted call. Every name must
// resolve to a value; unknown names are reported together.
func (c *Client) GetParameters(ctx context.Context, names ...string) (map[string]string, error) {
	if c.api == nil {
		return nil, errors.New("paramstore: client not initialized")
	}
	if len(names) == 0 {
		return nil, errors.New("paramstore: at least one name is required")
	}
	if len(names) > maxNamesPerCall {
		return nil, fmt.Errorf("paramstore: at most %d names per call, got %d", maxNamesPerCall, len(names))
	}
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, errors.New("paramstore: name is required")
		}
		cleaned = append(cleaned, n)
	}

	out, err := c.api.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          cleaned,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("paramstore: get parameters %v: %w", cleaned, err)
	}
	if out == nil {
		return nil, errors.New("paramstore: empty response")
	}
	if len(out.InvalidParameters) > 0 {
		invalid := append([]string(nil), out.InvalidParameters...)
		sort.Strings(invalid)
		return nil, fmt.Errorf("paramstore: parameters not found: %s", strings.Join(invalid, ", "))
	}

	values := make(map[string]string, len(out.Parameters))
	for _, p := range out.Parameters {
		if p.Name == nil || p.Value == nil {
			return nil, errors.New("paramstore: parameter missing value")
		}
		values[*p.Name] = *p.Value
	}
	for _, n := range cleaned {
		if _, ok := values[n]; !ok {
			return nil, fmt.Errorf("paramstore: parameter %q missing from response", n)
		}
	}
	return values, nil
}

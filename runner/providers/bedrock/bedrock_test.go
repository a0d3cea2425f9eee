// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"axonflow/modelrunner/pricing"
	"axonflow/modelrunner/runner"
)

type fakePrices struct{}

func (fakePrices) GetPrice(context.Context, string, string) *pricing.ModelPrice { return nil }

// fakeAPI scripts the runtime client without touching AWS
type fakeAPI struct {
	invokeOutput *bedrockruntime.InvokeModelOutput
	invokeErr    error
	gotInput     *bedrockruntime.InvokeModelInput
}

func (f *fakeAPI) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.gotInput = params
	return f.invokeOutput, f.invokeErr
}

func (f *fakeAPI) InvokeModelWithResponseStream(context.Context, *bedrockruntime.InvokeModelWithResponseStreamInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error) {
	return nil, errors.New("not scripted")
}

func bedrockEnv() map[string]string {
	return map[string]string{
		runner.EnvAWSSecretAccessKey: "secret",
		runner.EnvAWSRegion:          "us-east-1",
		runner.EnvAWSAccessKeyID:     "AKIATEST",
	}
}

func newFakeExecutor(api API) *Executor {
	exec := New(fakePrices{})
	exec.newClient = func(ctx context.Context, env map[string]string) (API, error) {
		// Same credential validation as the real factory.
		if _, err := runner.ProviderBedrock.APIKey(env); err != nil {
			return nil, err
		}
		for _, name := range []string{runner.EnvAWSRegion, runner.EnvAWSAccessKeyID} {
			if _, ok := env[name]; !ok {
				return nil, &runner.MissingCredentialError{Provider: runner.ProviderBedrock, Var: name}
			}
		}
		return api, nil
	}
	return exec
}

// TestChatCompletion tests the non-streaming invoke path with the
// Anthropic-on-Bedrock body shape
func TestChatCompletion(t *testing.T) {
	responseBody, _ := json.Marshal(map[string]interface{}{
		"model":       "claude-3-5-sonnet",
		"content":     []map[string]string{{"type": "text", "text": "Hello from Bedrock"}},
		"stop_reason": "end_turn",
		"usage":       map[string]int64{"input_tokens": 9, "output_tokens": 4},
	})
	api := &fakeAPI{invokeOutput: &bedrockruntime.InvokeModelOutput{Body: responseBody}}
	exec := newFakeExecutor(api)

	result, err := exec.ChatCompletion(context.Background(), runner.Request{
		Model:    "anthropic.claude-3-5-sonnet-20240620-v1:0",
		Provider: runner.ProviderBedrock,
		Messages: []runner.ChatMessage{
			{Role: runner.RoleSystem, Content: "Be brief."},
			{Role: runner.RoleUser, Content: "Say hello"},
		},
		Params: runner.Params{"max_tokens": float64(512), "temperature": 0.5},
		Env:    bedrockEnv(),
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if result.Content != "Hello from Bedrock" {
		t.Errorf("content = %q", result.Content)
	}
	if result.Usage.InputTokens != 9 || result.Usage.OutputTokens != 4 {
		t.Errorf("usage = %+v", result.Usage)
	}

	if *api.gotInput.ModelId != "anthropic.claude-3-5-sonnet-20240620-v1:0" {
		t.Errorf("model id = %q", *api.gotInput.ModelId)
	}

	var sent wireRequest
	if err := json.Unmarshal(api.gotInput.Body, &sent); err != nil {
		t.Fatalf("unmarshal sent body: %v", err)
	}
	if sent.AnthropicVersion != anthropicVersion {
		t.Errorf("anthropic_version = %q", sent.AnthropicVersion)
	}
	if sent.System != "Be brief." {
		t.Errorf("system = %q", sent.System)
	}
	if sent.MaxTokens != 512 {
		t.Errorf("max_tokens = %d", sent.MaxTokens)
	}
	if sent.Temperature == nil || *sent.Temperature != 0.5 {
		t.Errorf("temperature = %v", sent.Temperature)
	}
}

// TestChatCompletionMissingEnv tests each required variable in turn
func TestChatCompletionMissingEnv(t *testing.T) {
	for _, missing := range []string{runner.EnvAWSSecretAccessKey, runner.EnvAWSRegion, runner.EnvAWSAccessKeyID} {
		env := bedrockEnv()
		delete(env, missing)

		exec := newFakeExecutor(&fakeAPI{})
		_, err := exec.ChatCompletion(context.Background(), runner.Request{
			Model:    "anthropic.claude-3-5-sonnet-20240620-v1:0",
			Provider: runner.ProviderBedrock,
			Env:      env,
		})

		var missingErr *runner.MissingCredentialError
		if !errors.As(err, &missingErr) {
			t.Errorf("%s: expected MissingCredentialError, got %v", missing, err)
			continue
		}
		if missingErr.Var != missing {
			t.Errorf("missing var = %q, want %q", missingErr.Var, missing)
		}
	}
}

// TestMapError tests the taxonomy split over SDK error shapes
func TestMapError(t *testing.T) {
	exec := New(fakePrices{})

	clientFault := &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusBadRequest}},
		Err:      &smithy.GenericAPIError{Code: "ValidationException", Message: "malformed input"},
	}
	mapped := exec.mapError(clientFault)
	var rejErr *runner.BackendRejectedError
	if !errors.As(mapped, &rejErr) {
		t.Fatalf("expected BackendRejectedError, got %v", mapped)
	}
	if rejErr.Code != "ValidationException" || rejErr.StatusCode != http.StatusBadRequest {
		t.Errorf("rejection = %+v", rejErr)
	}

	serverFault := &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusServiceUnavailable}},
		Err:      &smithy.GenericAPIError{Code: "ServiceUnavailableException", Message: "try again"},
	}
	var unavailErr *runner.BackendUnavailableError
	if !errors.As(exec.mapError(serverFault), &unavailErr) {
		t.Fatalf("expected BackendUnavailableError for 5xx, got %v", exec.mapError(serverFault))
	}

	if !errors.As(exec.mapError(errors.New("dial tcp: timeout")), &unavailErr) {
		t.Fatal("expected BackendUnavailableError for transport error")
	}

	if got := exec.mapError(runner.ErrSinkClosed); !errors.Is(got, runner.ErrSinkClosed) {
		t.Errorf("sink closure was rewrapped: %v", got)
	}
}

// TestUsageFromWire tests cache token category mapping
func TestUsageFromWire(t *testing.T) {
	usage := usageFromWire(wireUsage{
		InputTokens:              10,
		CacheCreationInputTokens: 20,
		CacheReadInputTokens:     30,
		OutputTokens:             5,
	})

	want := runner.Usage{InputTokens: 10, CacheWriteTokens: 20, CacheReadTokens: 30, OutputTokens: 5, TotalTokens: 65}
	if usage != want {
		t.Errorf("usage = %+v, want %+v", usage, want)
	}
}

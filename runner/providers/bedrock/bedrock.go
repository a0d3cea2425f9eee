// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package bedrock implements the AWS Bedrock backend executor using the
// AWS SDK v2 runtime client. Credentials come from each request's env
// snapshot as static keys, never from the process environment or the
// instance role, so one executor serves calls against any AWS account.
// Model bodies follow the Anthropic messages format, the family Bedrock
// chat models in production here belong to.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"axonflow/modelrunner/runner"
)

const (
	anthropicVersion = "bedrock-2023-05-31"
	defaultMaxTokens = 4096
)

// API is the subset of the Bedrock runtime client this executor calls
// (enables testing).
type API interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// Executor runs chat completions against AWS Bedrock
type Executor struct {
	runner.CostEstimator

	// newClient builds a runtime client from a request's env snapshot
	newClient func(ctx context.Context, env map[string]string) (API, error)
}

// New creates a Bedrock executor priced from the given source
func New(prices runner.PriceSource) *Executor {
	return &Executor{
		CostEstimator: runner.NewCostEstimator(prices, "bedrock"),
		newClient:     newRuntimeClient,
	}
}

func newRuntimeClient(ctx context.Context, env map[string]string) (API, error) {
	secretKey, err := runner.ProviderBedrock.APIKey(env)
	if err != nil {
		return nil, err
	}
	region, ok := env[runner.EnvAWSRegion]
	if !ok {
		return nil, &runner.MissingCredentialError{Provider: runner.ProviderBedrock, Var: runner.EnvAWSRegion}
	}
	accessKeyID, ok := env[runner.EnvAWSAccessKeyID]
	if !ok {
		return nil, &runner.MissingCredentialError{Provider: runner.ProviderBedrock, Var: runner.EnvAWSAccessKeyID}
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", region, err)
	}

	return bedrockruntime.NewFromConfig(awsCfg), nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	AnthropicVersion string        `json:"anthropic_version"`
	System           string        `json:"system,omitempty"`
	Messages         []wireMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens"`
	Temperature      *float64      `json:"temperature,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
}

type wireUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string    `json:"stop_reason"`
	Usage      wireUsage `json:"usage"`
}

type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Model string    `json:"model"`
		Usage wireUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *wireUsage `json:"usage"`
}

// ChatCompletion implements runner.Executor
func (e *Executor) ChatCompletion(ctx context.Context, req runner.Request) (*runner.ChatCompletion, error) {
	client, err := e.newClient(ctx, req.Env)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()

	var (
		content      string
		finishReason string
		model        string
		usage        runner.Usage
	)

	if req.Streaming() {
		output, err := client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(req.Model),
			Body:        body,
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
		})
		if err != nil {
			return nil, e.mapError(err)
		}
		content, finishReason, model, usage, err = e.readStream(ctx, output, req)
		if err != nil {
			return nil, e.mapError(err)
		}
	} else {
		output, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(req.Model),
			Body:        body,
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
		})
		if err != nil {
			return nil, e.mapError(err)
		}

		var out wireResponse
		if err := json.Unmarshal(output.Body, &out); err != nil {
			return nil, e.mapError(fmt.Errorf("failed to parse response: %w", err))
		}
		var sb strings.Builder
		for _, block := range out.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		content = sb.String()
		finishReason = out.StopReason
		model = out.Model
		usage = usageFromWire(out.Usage)
	}

	if model == "" {
		model = req.Model
	}

	return &runner.ChatCompletion{
		Content:      content,
		Model:        model,
		Provider:     runner.ProviderBedrock,
		FinishReason: finishReason,
		Usage:        usage,
		CostUSD:      e.EstimateUsageCost(ctx, req.Model, usage),
		Latency:      time.Since(start),
	}, nil
}

// buildRequest maps the normalized request onto the Anthropic-on-Bedrock
// body. A leading system message moves to the dedicated system field.
func buildRequest(req runner.Request) wireRequest {
	wire := wireRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        defaultMaxTokens,
	}

	messages := req.Messages
	if len(messages) > 0 && messages[0].Role == runner.RoleSystem {
		wire.System = messages[0].Content
		messages = messages[1:]
	}
	for _, m := range messages {
		wire.Messages = append(wire.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}

	if v, ok := req.Params.Int("max_tokens"); ok {
		wire.MaxTokens = v
	}
	if v, ok := req.Params.Float("temperature"); ok {
		wire.Temperature = &v
	}
	if v, ok := req.Params.Float("top_p"); ok {
		wire.TopP = &v
	}

	return wire
}

// readStream consumes the response stream. Bedrock wraps the same event
// JSON the Anthropic API streams, one event per chunk frame.
func (e *Executor) readStream(ctx context.Context, output *bedrockruntime.InvokeModelWithResponseStreamOutput, req runner.Request) (content, finishReason, model string, usage runner.Usage, err error) {
	stream := output.GetStream()
	defer func() {
		_ = stream.Close()
	}()

	var sb strings.Builder

	for raw := range stream.Events() {
		chunk, ok := raw.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal(chunk.Value.Bytes, &event); err != nil {
			continue // Skip malformed events
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				model = event.Message.Model
				in := usageFromWire(event.Message.Usage)
				usage.InputTokens = in.InputTokens
				usage.CacheWriteTokens = in.CacheWriteTokens
				usage.CacheReadTokens = in.CacheReadTokens
			}

		case "content_block_delta":
			if event.Delta == nil || event.Delta.Text == "" {
				continue
			}
			sb.WriteString(event.Delta.Text)
			if err := req.EmitChunk(ctx, event.Delta.Text); err != nil {
				return "", "", "", runner.Usage{}, err
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				finishReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				usage.OutputTokens = event.Usage.OutputTokens
			}
		}
	}

	if err := stream.Err(); err != nil {
		return "", "", "", runner.Usage{}, fmt.Errorf("stream read error: %w", err)
	}

	usage.TotalTokens = usage.InputTokens + usage.CacheWriteTokens + usage.CacheReadTokens + usage.OutputTokens
	return sb.String(), finishReason, model, usage, nil
}

func (e *Executor) mapError(err error) error {
	if errors.Is(err, runner.ErrSinkClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		status := 0
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &respErr) {
			status = respErr.HTTPStatusCode()
		}
		if status >= 400 && status < 500 {
			return &runner.BackendRejectedError{
				Provider:   runner.ProviderBedrock,
				StatusCode: status,
				Code:       apiErr.ErrorCode(),
				Message:    apiErr.ErrorMessage(),
			}
		}
	}

	return &runner.BackendUnavailableError{Provider: runner.ProviderBedrock, Cause: err}
}

func usageFromWire(u wireUsage) runner.Usage {
	return runner.Usage{
		InputTokens:      u.InputTokens,
		CacheWriteTokens: u.CacheCreationInputTokens,
		CacheReadTokens:  u.CacheReadInputTokens,
		OutputTokens:     u.OutputTokens,
		TotalTokens:      u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens + u.OutputTokens,
	}
}

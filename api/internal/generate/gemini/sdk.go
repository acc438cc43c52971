// Package gemini holds the generate.Backend implementations for the Gemini API.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"insights-proxy/api/internal/generate"
)

// SDK talks to Gemini through generative-ai-go. A client is opened per call.
type SDK struct {
	APIKey string
	opts   []option.ClientOption
}

func NewSDK(apiKey string, opts ...option.ClientOption) *SDK {
	return &SDK{APIKey: strings.TrimSpace(apiKey), opts: opts}
}

func (s *SDK) Name() string { return "gemini-sdk" }

func (s *SDK) Send(ctx context.Context, call generate.Call) (generate.Response, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(s.APIKey)}, s.opts...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return generate.Response{}, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(strings.TrimSpace(call.Model))
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptr(call.Temperature),
		MaxOutputTokens:  ptr(call.MaxOutputTokens),
		ResponseMIMEType: "application/json",
	}
	if call.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(call.System)}}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(call.Prompt))
	if err != nil {
		if code, ok := statusOf(err); ok {
			return generate.Response{StatusCode: code, Body: err.Error()}, nil
		}
		return generate.Response{}, err
	}
	return generate.Response{StatusCode: http.StatusOK, Text: firstText(resp)}, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// statusOf maps an SDK error to the HTTP status the API answered with. Unavailable and errors
// without a status are transport faults and report false.
func statusOf(err error) (int, bool) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code, true
	}
	var aerr *apierror.APIError
	if errors.As(err, &aerr) {
		if code := aerr.HTTPCode(); code > 0 {
			return code, true
		}
		if st := aerr.GRPCStatus(); st != nil {
			return httpStatus(st.Code())
		}
	}
	if st, ok := status.FromError(err); ok {
		return httpStatus(st.Code())
	}
	return 0, false
}

func httpStatus(c codes.Code) (int, bool) {
	switch c {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests, true
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest, true
	case codes.Unauthenticated:
		return http.StatusUnauthorized, true
	case codes.PermissionDenied:
		return http.StatusForbidden, true
	case codes.NotFound:
		return http.StatusNotFound, true
	case codes.Internal, codes.Unknown, codes.DataLoss:
		return http.StatusInternalServerError, true
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout, true
	}
	return 0, false
}

func ptr[T any](v T) *T { return &v }

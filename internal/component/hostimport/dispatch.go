package hostimport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/compruntime/host/internal/component/engine"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostModuleName is the module name guests import host functions from.
const HostModuleName = "greentic:host"

// BuildHostModule registers the five host-import families as a wazero
// host module. Per-call mutable state (secrets, policy, tenant) is not
// captured here: it travels through the context.Context passed to each
// guest export call and is retrieved via FromContext, since one Engine
// and its compiled host module are shared across every invocation of a
// handle while each invocation gets its own HostState.
func BuildHostModule(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	builder := rt.NewHostModuleBuilder(HostModuleName)

	builder.NewFunctionBuilder().WithFunc(secretsGet).Export("secrets_get")
	builder.NewFunctionBuilder().WithFunc(telemetryEmit).Export("telemetry_emit")
	builder.NewFunctionBuilder().WithFunc(httpFetch).Export("http_fetch")
	builder.NewFunctionBuilder().WithFunc(stateRead).Export("state_read")
	builder.NewFunctionBuilder().WithFunc(stateWrite).Export("state_write")
	builder.NewFunctionBuilder().WithFunc(stateDelete).Export("state_delete")
	builder.NewFunctionBuilder().WithFunc(controlShouldCancel).Export("control_should_cancel")
	builder.NewFunctionBuilder().WithFunc(controlYieldNow).Export("control_yield_now")

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("hostimport: instantiating host module: %w", err)
	}
	return mod, nil
}

func readRequest(mod api.Module, ptr, length uint32) []byte {
	data, err := engine.ReadBytes(mod, ptr, length)
	if err != nil {
		panic(fmt.Errorf("hostimport: reading request: %w", err))
	}
	return data
}

func writeResponse(ctx context.Context, mod api.Module, v any) uint64 {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("hostimport: marshaling response: %w", err))
	}
	ptr, length, err := engine.WriteBytes(ctx, mod, data)
	if err != nil {
		panic(fmt.Errorf("hostimport: writing response: %w", err))
	}
	return engine.PackPtrLen(ptr, length)
}

// errorResponse is the shape every host import returns on a denied or
// malformed call; denied calls surface this to the guest, they never
// trap the host.
type errorResponse struct {
	Error string `json:"error"`
}

const (
	errNotFound   = "not_found"
	errInvalidKey = "invalid_key"
	errDenied     = "denied"
	errInvalidArg = "invalid_arg"
)

// --- secrets.get ---

type secretsGetRequest struct {
	Key string `json:"key"`
}

type secretsGetResponse struct {
	Ok       bool   `json:"ok"`
	ValueB64 string `json:"value_b64,omitempty"`
	Error    string `json:"error,omitempty"`
}

func secretsGet(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
	state, ok := FromContext(ctx)
	if !ok {
		return writeResponse(ctx, mod, secretsGetResponse{Error: errDenied})
	}

	var req secretsGetRequest
	if err := json.Unmarshal(readRequest(mod, reqPtr, reqLen), &req); err != nil {
		return writeResponse(ctx, mod, secretsGetResponse{Error: errInvalidArg})
	}
	if req.Key == "" {
		return writeResponse(ctx, mod, secretsGetResponse{Error: errInvalidKey})
	}
	if !state.Policy.CheckSecrets() {
		return writeResponse(ctx, mod, secretsGetResponse{Error: errDenied})
	}
	val, ok := state.Secrets[req.Key]
	if !ok {
		return writeResponse(ctx, mod, secretsGetResponse{Error: errNotFound})
	}
	return writeResponse(ctx, mod, secretsGetResponse{Ok: true, ValueB64: base64.StdEncoding.EncodeToString(val)})
}

// --- telemetry.emit ---

func telemetryEmit(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
	state, ok := FromContext(ctx)
	if !ok || !state.Policy.CheckTelemetry() {
		return writeResponse(ctx, mod, struct{}{})
	}
	span := readRequest(mod, reqPtr, reqLen)
	if state.Logger != nil {
		state.Logger.Info("component telemetry span",
			"tenant", state.Tenant.Key(), "span", json.RawMessage(span))
	}
	return writeResponse(ctx, mod, struct{}{})
}

// --- http.fetch ---

type httpFetchRequest struct {
	Method  string `json:"method"`
	URL     string `json:"url"`
	Headers any    `json:"headers,omitempty"`
	BodyB64 string `json:"body_b64,omitempty"`
}

type httpFetchResponse struct {
	Status  int                 `json:"status,omitempty"`
	Headers map[string][]string `json:"headers,omitempty"`
	BodyB64 string              `json:"body_b64,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func httpFetch(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
	state, ok := FromContext(ctx)
	if !ok {
		return writeResponse(ctx, mod, httpFetchResponse{Error: errDenied})
	}

	var req httpFetchRequest
	if err := json.Unmarshal(readRequest(mod, reqPtr, reqLen), &req); err != nil {
		return writeResponse(ctx, mod, httpFetchResponse{Error: errInvalidArg})
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Host == "" {
		return writeResponse(ctx, mod, httpFetchResponse{Error: errInvalidArg})
	}
	if !state.Policy.CheckHTTPDomain(parsed.Hostname()) {
		return writeResponse(ctx, mod, httpFetchResponse{Error: errDenied})
	}

	var body io.Reader
	if req.BodyB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.BodyB64)
		if err != nil {
			return writeResponse(ctx, mod, httpFetchResponse{Error: errInvalidArg})
		}
		body = strings.NewReader(string(decoded))
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), req.URL, body)
	if err != nil {
		return writeResponse(ctx, mod, httpFetchResponse{Error: errInvalidArg})
	}

	if err := applyHeaders(httpReq, req.Headers); err != nil {
		return writeResponse(ctx, mod, httpFetchResponse{Error: errInvalidArg})
	}

	if state.HTTPLimiter != nil {
		if err := state.HTTPLimiter.Wait(ctx); err != nil {
			return writeResponse(ctx, mod, httpFetchResponse{Error: errDenied})
		}
	}

	client := state.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return writeResponse(ctx, mod, httpFetchResponse{Error: errInvalidArg})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return writeResponse(ctx, mod, httpFetchResponse{Error: errInvalidArg})
	}

	return writeResponse(ctx, mod, httpFetchResponse{
		Status:  resp.StatusCode,
		Headers: map[string][]string(resp.Header),
		BodyB64: base64.StdEncoding.EncodeToString(respBody),
	})
}

// applyHeaders implements the exact header-parsing rule spec §4.5
// prescribes: a string value becomes a single header, an array of
// strings becomes multiple instances of that header in insertion order,
// anything else is an invalid argument.
func applyHeaders(req *http.Request, headers any) error {
	if headers == nil {
		return nil
	}
	obj, ok := headers.(map[string]any)
	if !ok {
		return fmt.Errorf("headers must be a JSON object")
	}
	for name, value := range obj {
		switch v := value.(type) {
		case string:
			req.Header.Add(name, v)
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return fmt.Errorf("header %q array values must be strings", name)
				}
				req.Header.Add(name, s)
			}
		default:
			return fmt.Errorf("header %q must be a string or array of strings", name)
		}
	}
	return nil
}

// --- state.{read,write,delete} ---

type stateReadRequest struct {
	Key string `json:"key"`
}

type stateReadResponse struct {
	Found    bool   `json:"found"`
	ValueB64 string `json:"value_b64,omitempty"`
	Error    string `json:"error,omitempty"`
}

func stateRead(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
	state, ok := FromContext(ctx)
	if !ok {
		return writeResponse(ctx, mod, stateReadResponse{Error: errDenied})
	}
	var req stateReadRequest
	if err := json.Unmarshal(readRequest(mod, reqPtr, reqLen), &req); err != nil {
		return writeResponse(ctx, mod, stateReadResponse{Error: errInvalidArg})
	}
	if !state.Policy.CheckState(StateRead, req.Key) {
		return writeResponse(ctx, mod, stateReadResponse{Error: errDenied})
	}
	val, found, err := state.StateStore.Read(ctx, state.StateScope, req.Key)
	if err != nil {
		return writeResponse(ctx, mod, stateReadResponse{Error: errInvalidArg})
	}
	if !found {
		return writeResponse(ctx, mod, stateReadResponse{Found: false})
	}
	return writeResponse(ctx, mod, stateReadResponse{Found: true, ValueB64: base64.StdEncoding.EncodeToString(val)})
}

type stateWriteRequest struct {
	Key      string `json:"key"`
	ValueB64 string `json:"value_b64"`
}

type stateWriteResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func stateWrite(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
	state, ok := FromContext(ctx)
	if !ok {
		return writeResponse(ctx, mod, stateWriteResponse{Error: errDenied})
	}
	var req stateWriteRequest
	if err := json.Unmarshal(readRequest(mod, reqPtr, reqLen), &req); err != nil {
		return writeResponse(ctx, mod, stateWriteResponse{Error: errInvalidArg})
	}
	if !state.Policy.CheckState(StateWrite, req.Key) {
		return writeResponse(ctx, mod, stateWriteResponse{Error: errDenied})
	}
	val, err := base64.StdEncoding.DecodeString(req.ValueB64)
	if err != nil {
		return writeResponse(ctx, mod, stateWriteResponse{Error: errInvalidArg})
	}
	if err := state.StateStore.Write(ctx, state.StateScope, req.Key, val); err != nil {
		return writeResponse(ctx, mod, stateWriteResponse{Error: errInvalidArg})
	}
	return writeResponse(ctx, mod, stateWriteResponse{Ok: true})
}

type stateDeleteRequest struct {
	Key string `json:"key"`
}

type stateDeleteResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func stateDelete(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
	state, ok := FromContext(ctx)
	if !ok {
		return writeResponse(ctx, mod, stateDeleteResponse{Error: errDenied})
	}
	var req stateDeleteRequest
	if err := json.Unmarshal(readRequest(mod, reqPtr, reqLen), &req); err != nil {
		return writeResponse(ctx, mod, stateDeleteResponse{Error: errInvalidArg})
	}
	if !state.Policy.CheckState(StateDelete, req.Key) {
		return writeResponse(ctx, mod, stateDeleteResponse{Error: errDenied})
	}
	if err := state.StateStore.Delete(ctx, state.StateScope, req.Key); err != nil {
		return writeResponse(ctx, mod, stateDeleteResponse{Error: errInvalidArg})
	}
	return writeResponse(ctx, mod, stateDeleteResponse{Ok: true})
}

// --- control.{should_cancel,yield_now} ---

type controlShouldCancelResponse struct {
	Cancel bool `json:"cancel"`
}

func controlShouldCancel(ctx context.Context, mod api.Module) uint64 {
	state, ok := FromContext(ctx)
	cancel := ok && state.ShouldCancel()
	return writeResponse(ctx, mod, controlShouldCancelResponse{Cancel: cancel})
}

func controlYieldNow(ctx context.Context, mod api.Module) uint64 {
	return writeResponse(ctx, mod, struct{}{})
}

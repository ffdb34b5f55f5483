package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jurni-app/planner/auth"
	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/memory"
	"github.com/jurni-app/planner/orchestrator"
	"github.com/jurni-app/planner/session"
	"github.com/jurni-app/planner/stream"
)

// ServiceName is the fully qualified Connect service name. Messages are
// google.protobuf.Struct values shaped like the JSON API.
const ServiceName = "planner.v1.PlannerService"

const (
	ProcedureSubmitTurn    = "/" + ServiceName + "/SubmitTurn"
	ProcedureCreateSession = "/" + ServiceName + "/CreateSession"
	ProcedureGetSession    = "/" + ServiceName + "/GetSession"
	ProcedureCloseSession  = "/" + ServiceName + "/CloseSession"
	ProcedureSaveItinerary = "/" + ServiceName + "/SaveItinerary"
)

func (s *Server) connectHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(ProcedureSubmitTurn, connect.NewServerStreamHandler(ProcedureSubmitTurn, s.rpcSubmitTurn))
	mux.Handle(ProcedureCreateSession, connect.NewUnaryHandler(ProcedureCreateSession, s.rpcCreateSession))
	mux.Handle(ProcedureGetSession, connect.NewUnaryHandler(ProcedureGetSession, s.rpcGetSession))
	mux.Handle(ProcedureCloseSession, connect.NewUnaryHandler(ProcedureCloseSession, s.rpcCloseSession))
	mux.Handle(ProcedureSaveItinerary, connect.NewUnaryHandler(ProcedureSaveItinerary, s.rpcSaveItinerary))
	return mux
}

func (s *Server) rpcSubmitTurn(ctx context.Context, req *connect.Request[structpb.Struct], out *connect.ServerStream[structpb.Struct]) error {
	fields := req.Msg.GetFields()
	turnReq := orchestrator.TurnRequest{
		SessionID: fields["session_id"].GetStringValue(),
		Owner:     auth.UserID(ctx),
		Message:   fields["message"].GetStringValue(),
	}
	if hint := fields["phase"].GetStringValue(); hint != "" {
		phase, err := protocol.ParsePhase(hint)
		if err != nil {
			return connectError(err)
		}
		turnReq.PhaseHint = phase
	}

	turn, err := s.planner.Submit(ctx, turnReq)
	if err != nil {
		return connectError(err)
	}

	for ev := range turn.Events() {
		msg, err := toStruct(ev)
		if err != nil {
			return connect.NewError(connect.CodeInternal, err)
		}
		if err := out.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) rpcCreateSession(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	sess, err := s.planner.CreateSession(ctx, sessionField(req.Msg), auth.UserID(ctx))
	return sessionResponse(sess, err)
}

func (s *Server) rpcGetSession(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	sess, err := s.planner.Session(ctx, sessionField(req.Msg), auth.UserID(ctx))
	return sessionResponse(sess, err)
}

func (s *Server) rpcCloseSession(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	sess, err := s.planner.CloseSession(ctx, sessionField(req.Msg), auth.UserID(ctx))
	return sessionResponse(sess, err)
}

func (s *Server) rpcSaveItinerary(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	trip, err := s.planner.SaveItinerary(ctx, sessionField(req.Msg), auth.UserID(ctx))
	if err != nil {
		return nil, connectError(err)
	}
	msg, err := toStruct(trip)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func sessionField(msg *structpb.Struct) string {
	return msg.GetFields()["session_id"].GetStringValue()
}

func sessionResponse(sess *session.Session, err error) (*connect.Response[structpb.Struct], error) {
	if err != nil {
		return nil, connectError(err)
	}
	msg, err := toStruct(sess)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// toStruct converts v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes msg into v through its JSON form.
func fromStruct(msg *structpb.Struct, v any) error {
	b, err := msg.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

// Client calls a planner server over Connect.
type Client struct {
	submit        *connect.Client[structpb.Struct, structpb.Struct]
	createSession *connect.Client[structpb.Struct, structpb.Struct]
	getSession    *connect.Client[structpb.Struct, structpb.Struct]
	closeSession  *connect.Client[structpb.Struct, structpb.Struct]
	saveItinerary *connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient creates a client for the server at baseURL. A non-empty token
// is sent as a bearer credential on every call.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if token != "" {
		opts = append(opts, connect.WithInterceptors(bearer(token)))
	}
	newClient := func(procedure string) *connect.Client[structpb.Struct, structpb.Struct] {
		return connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+procedure, opts...)
	}
	return &Client{
		submit:        newClient(ProcedureSubmitTurn),
		createSession: newClient(ProcedureCreateSession),
		getSession:    newClient(ProcedureGetSession),
		closeSession:  newClient(ProcedureCloseSession),
		saveItinerary: newClient(ProcedureSaveItinerary),
	}
}

// SubmitTurn sends one message and calls fn for every event of the turn.
// An error returned by fn stops the stream and is returned.
func (c *Client) SubmitTurn(ctx context.Context, sessionID, message string, phase protocol.Phase, fn func(stream.Event) error) error {
	fields := map[string]any{"session_id": sessionID, "message": message}
	if phase != "" {
		fields["phase"] = string(phase)
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}

	res, err := c.submit.CallServerStream(ctx, connect.NewRequest(msg))
	if err != nil {
		return err
	}
	defer res.Close()

	for res.Receive() {
		var ev stream.Event
		if err := fromStruct(res.Msg(), &ev); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return res.Err()
}

func (c *Client) CreateSession(ctx context.Context, id string) (*session.Session, error) {
	return c.sessionCall(ctx, c.createSession, id)
}

func (c *Client) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return c.sessionCall(ctx, c.getSession, id)
}

func (c *Client) CloseSession(ctx context.Context, id string) (*session.Session, error) {
	return c.sessionCall(ctx, c.closeSession, id)
}

func (c *Client) SaveItinerary(ctx context.Context, id string) (memory.Trip, error) {
	res, err := c.saveItinerary.CallUnary(ctx, connect.NewRequest(sessionRequestStruct(id)))
	if err != nil {
		return memory.Trip{}, err
	}
	var trip memory.Trip
	if err := fromStruct(res.Msg, &trip); err != nil {
		return memory.Trip{}, err
	}
	return trip, nil
}

func (c *Client) sessionCall(ctx context.Context, call *connect.Client[structpb.Struct, structpb.Struct], id string) (*session.Session, error) {
	res, err := call.CallUnary(ctx, connect.NewRequest(sessionRequestStruct(id)))
	if err != nil {
		return nil, err
	}
	var sess session.Session
	if err := fromStruct(res.Msg, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func sessionRequestStruct(id string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"session_id": structpb.NewStringValue(id),
	}}
}

type bearer string

func (b bearer) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			req.Header().Set("Authorization", "Bearer "+string(b))
		}
		return next(ctx, req)
	}
}

func (b bearer) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		conn.RequestHeader().Set("Authorization", "Bearer "+string(b))
		return conn
	}
}

func (b bearer) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}

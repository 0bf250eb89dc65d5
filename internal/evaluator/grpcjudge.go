package evaluator

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #region constants
const (
	judgeService = "leadjudge.v1.Judge"
	judgeMethod  = "/" + judgeService + "/Evaluate"
)

// #endregion constants

// #region client-struct
// GRPCJudge scores candidates through a remote judge service.
// Requests and replies are google.protobuf.Struct messages.
type GRPCJudge struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewGRPCJudge connects to the judge gRPC server.
func NewGRPCJudge(addr string) (*GRPCJudge, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCJudge{conn: conn, cc: conn}, nil
}

// NewGRPCJudgeWithConn creates a judge over an existing connection.
// Used for testing with an in-process server.
func NewGRPCJudgeWithConn(cc grpc.ClientConnInterface) *GRPCJudge {
	return &GRPCJudge{cc: cc}
}

// #endregion constructor

// #region close
// Close shuts down the owned gRPC connection, if any.
func (j *GRPCJudge) Close() error {
	if j.conn == nil {
		return nil
	}
	return j.conn.Close()
}

// #endregion close

// #region evaluate
// Evaluate sends the candidate to the judge and parses its reply.
func (j *GRPCJudge) Evaluate(ctx context.Context, lead policy.Lead, strategy policy.StrategyID, text string) (policy.Evaluation, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"lead": map[string]interface{}{
			"id":        lead.ID,
			"name":      lead.Name,
			"goal":      lead.Goal,
			"offer":     lead.Offer,
			"message":   lead.Message,
			"channel":   string(lead.Channel),
			"objection": string(lead.Objection),
			"sentiment": string(lead.Sentiment),
		},
		"strategy":      string(strategy),
		"response_text": text,
	})
	if err != nil {
		return policy.Evaluation{}, fmt.Errorf("build judge request: %w", err)
	}

	reply := &structpb.Struct{}
	if err := j.cc.Invoke(ctx, judgeMethod, req, reply); err != nil {
		return policy.Evaluation{}, fmt.Errorf("judge rpc: %w", err)
	}
	return evaluationFromStruct(reply)
}

func evaluationFromStruct(s *structpb.Struct) (policy.Evaluation, error) {
	fields := s.GetFields()
	score, ok := fields["score"]
	if !ok {
		return policy.Evaluation{}, fmt.Errorf("%w: missing score", ErrMalformed)
	}
	conv, ok := fields["conversion_probability"]
	if !ok {
		return policy.Evaluation{}, fmt.Errorf("%w: missing conversion_probability", ErrMalformed)
	}
	if _, isNum := score.GetKind().(*structpb.Value_NumberValue); !isNum {
		return policy.Evaluation{}, fmt.Errorf("%w: score is not a number", ErrMalformed)
	}
	if _, isNum := conv.GetKind().(*structpb.Value_NumberValue); !isNum {
		return policy.Evaluation{}, fmt.Errorf("%w: conversion_probability is not a number", ErrMalformed)
	}
	return policy.Evaluation{
		Score:                 score.GetNumberValue(),
		ConversionProbability: conv.GetNumberValue(),
		Notes:                 fields["notes"].GetStringValue(),
	}, nil
}

// #endregion evaluate

// #region server
// JudgeServer is the server side of the judge service.
type JudgeServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func judgeEvaluateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JudgeServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: judgeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(JudgeServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var judgeServiceDesc = grpc.ServiceDesc{
	ServiceName: judgeService,
	HandlerType: (*JudgeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: judgeEvaluateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "leadjudge/v1/judge.proto",
}

// RegisterJudgeServer registers srv on s.
func RegisterJudgeServer(s *grpc.Server, srv JudgeServer) {
	s.RegisterService(&judgeServiceDesc, srv)
}

// RuleJudgeServer serves the rule evaluator over gRPC.
type RuleJudgeServer struct {
	rules *RuleEvaluator
}

// NewRuleJudgeServer creates a judge server backed by rule scoring.
func NewRuleJudgeServer() *RuleJudgeServer {
	return &RuleJudgeServer{rules: NewRuleEvaluator()}
}

// Evaluate decodes the request struct, scores it and encodes the reply.
func (s *RuleJudgeServer) Evaluate(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	strategy, err := policy.ParseStrategy(fields["strategy"].GetStringValue())
	if err != nil {
		return nil, err
	}
	lf := fields["lead"].GetStructValue().GetFields()
	lead := policy.Lead{
		ID:        lf["id"].GetStringValue(),
		Name:      lf["name"].GetStringValue(),
		Goal:      lf["goal"].GetStringValue(),
		Offer:     lf["offer"].GetStringValue(),
		Message:   lf["message"].GetStringValue(),
		Channel:   policy.Channel(lf["channel"].GetStringValue()),
		Objection: policy.Objection(lf["objection"].GetStringValue()),
		Sentiment: policy.Sentiment(lf["sentiment"].GetStringValue()),
	}
	ev := s.rules.Score(lead, strategy, fields["response_text"].GetStringValue())
	return structpb.NewStruct(map[string]interface{}{
		"score":                  ev.Score,
		"conversion_probability": ev.ConversionProbability,
		"notes":                  ev.Notes,
	})
}

// #endregion server

package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name of the lottery host
const ServiceName = "lottery.v1.LotteryHost"

// Full method names
const (
	MethodInitialize = "/" + ServiceName + "/Initialize"
	MethodEnter      = "/" + ServiceName + "/Enter"
	MethodPickWinner = "/" + ServiceName + "/PickWinner"
	MethodGetInfo    = "/" + ServiceName + "/GetInfo"
	MethodDeposit    = "/" + ServiceName + "/Deposit"
	MethodGetBalance = "/" + ServiceName + "/GetBalance"
)

// LotteryHostServer is the server API of the lottery host. Requests and
// responses are google.protobuf.Struct documents.
type LotteryHostServer interface {
	Initialize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Enter(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PickWinner(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetInfo(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Deposit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterLotteryHostServer registers srv with s
func RegisterLotteryHostServer(s grpc.ServiceRegistrar, srv LotteryHostServer) {
	s.RegisterService(&LotteryHostServiceDesc, srv)
}

type unaryMethod func(LotteryHostServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LotteryHostServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LotteryHostServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LotteryHostServiceDesc is the grpc.ServiceDesc for the lottery host
var LotteryHostServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LotteryHostServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Initialize", Handler: unaryHandler(MethodInitialize, LotteryHostServer.Initialize)},
		{MethodName: "Enter", Handler: unaryHandler(MethodEnter, LotteryHostServer.Enter)},
		{MethodName: "PickWinner", Handler: unaryHandler(MethodPickWinner, LotteryHostServer.PickWinner)},
		{MethodName: "GetInfo", Handler: unaryHandler(MethodGetInfo, LotteryHostServer.GetInfo)},
		{MethodName: "Deposit", Handler: unaryHandler(MethodDeposit, LotteryHostServer.Deposit)},
		{MethodName: "GetBalance", Handler: unaryHandler(MethodGetBalance, LotteryHostServer.GetBalance)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lottery/v1/lottery_host.proto",
}

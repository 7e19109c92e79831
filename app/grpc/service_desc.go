package grpc

import (
	"context"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "member.v1.MemberService"

// MemberServiceServer carries every request and response as a google.protobuf.Struct.
type MemberServiceServer interface {
	SignUp(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OAuthLogin(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reissue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindID(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindPassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckCode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterMemberServiceServer(s gogrpc.ServiceRegistrar, srv MemberServiceServer) {
	s.RegisterService(&MemberServiceDesc, srv)
}

// FullMethod returns the fully qualified method name used on the wire.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type unaryMethod func(MemberServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) gogrpc.MethodDesc {
	return gogrpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MemberServiceServer), ctx, in)
			}
			info := &gogrpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MemberServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var MemberServiceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MemberServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		unaryHandler("SignUp", MemberServiceServer.SignUp),
		unaryHandler("Login", MemberServiceServer.Login),
		unaryHandler("OAuthLogin", MemberServiceServer.OAuthLogin),
		unaryHandler("Reissue", MemberServiceServer.Reissue),
		unaryHandler("FindID", MemberServiceServer.FindID),
		unaryHandler("FindPassword", MemberServiceServer.FindPassword),
		unaryHandler("CheckCode", MemberServiceServer.CheckCode),
		unaryHandler("Logout", MemberServiceServer.Logout),
		unaryHandler("ValidateToken", MemberServiceServer.ValidateToken),
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "member/v1/member.proto",
}

package grpcserver

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ewastePickup/internal/apperr"
)

const errorDomain = "ewaste.pickup"

func codeFor(kind apperr.Kind) codes.Code {
	switch kind {
	case apperr.KindValidation, apperr.KindInvalidAssignee:
		return codes.InvalidArgument
	case apperr.KindAuthorization:
		return codes.PermissionDenied
	case apperr.KindNotFound:
		return codes.NotFound
	case apperr.KindInvalidTransition:
		return codes.FailedPrecondition
	case apperr.KindAuthentication:
		return codes.Unauthenticated
	case apperr.KindConflict:
		return codes.AlreadyExists
	}
	return codes.Internal
}

// toStatus maps a service error onto a gRPC status. The error kind travels as an
// ErrorInfo reason; invalid transitions also carry the current status.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
	st := status.New(codeFor(ae.Kind), ae.Error())
	info := &errdetails.ErrorInfo{Reason: string(ae.Kind), Domain: errorDomain}
	if ae.Current != "" {
		info.Metadata = map[string]string{"current_status": ae.Current}
	}
	if withInfo, derr := st.WithDetails(info); derr == nil {
		st = withInfo
	}
	return st.Err()
}

// ErrorInfo extracts the ErrorInfo detail attached by toStatus, if any.
func ErrorInfo(err error) *errdetails.ErrorInfo {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info
		}
	}
	return nil
}

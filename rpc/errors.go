package rpc

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/pdavault/errs"
)

const errorDomain = "pdavault.xdao.co"

// toStatus maps vault error kinds onto gRPC status codes. The kind and the
// stable error code travel in an ErrorInfo detail so clients can restore them.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}

	kind := errs.KindOf(err)
	var code codes.Code
	switch kind {
	case errs.KindAuthorization:
		code = codes.PermissionDenied
	case errs.KindAddressMismatch, errs.KindInvalidInstruction, errs.KindInvalidProof, errs.KindInvalidSeeds:
		code = codes.InvalidArgument
	case errs.KindInsufficientBalance:
		code = codes.FailedPrecondition
	case errs.KindAlreadyInitialized:
		code = codes.AlreadyExists
	case errs.KindNotFound:
		code = codes.NotFound
	case errs.KindMalformedRecord:
		code = codes.DataLoss
	default:
		code = codes.Internal
	}

	st := status.New(code, err.Error())
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   errs.Code(err),
		Domain:   errorDomain,
		Metadata: map[string]string{"kind": string(kind)},
	})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// fromStatus is the inverse of toStatus. Without an ErrorInfo detail the kind
// falls back to the most common kind for the status code.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != errorDomain {
			continue
		}
		if kind := info.GetMetadata()["kind"]; kind != "" {
			return &errs.Error{Kind: errs.Kind(kind), Code: info.GetReason(), Message: st.Message()}
		}
	}

	var kind errs.Kind
	switch st.Code() {
	case codes.PermissionDenied:
		kind = errs.KindAuthorization
	case codes.InvalidArgument:
		kind = errs.KindInvalidInstruction
	case codes.FailedPrecondition:
		kind = errs.KindInsufficientBalance
	case codes.AlreadyExists:
		kind = errs.KindAlreadyInitialized
	case codes.NotFound:
		kind = errs.KindNotFound
	case codes.DataLoss:
		kind = errs.KindMalformedRecord
	default:
		return err
	}
	return &errs.Error{Kind: kind, Message: st.Message()}
}

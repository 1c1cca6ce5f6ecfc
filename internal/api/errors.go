package api

import (
	"github.com/sereno-app/sereno/internal/chaterr"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Code maps a chat error to the gRPC code clients see.
func Code(err error) codes.Code {
	switch chaterr.KindOf(err) {
	case "":
		return codes.OK
	case chaterr.KindInvalidRoom, chaterr.KindEmptyMessage:
		return codes.InvalidArgument
	case chaterr.KindAlreadyActive, chaterr.KindNotConnected, chaterr.KindInvalidTransition, chaterr.KindNotEligible:
		return codes.FailedPrecondition
	case chaterr.KindNotFound:
		return codes.NotFound
	case chaterr.KindTransport, chaterr.KindGaveUp, chaterr.KindServer:
		return codes.Unavailable
	case chaterr.KindTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// toStatus wraps err as a gRPC status. The chat error kind travels in the
// message prefix so clients can print it.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	return grpcstatus.Errorf(Code(err), "%s: %v", chaterr.KindOf(err), err)
}

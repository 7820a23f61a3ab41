package rpc

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/instruction"
	"xdao.co/pdavault/ledger"
	"xdao.co/pdavault/runtime"
	"xdao.co/pdavault/storage"
)

// RequestIDHeader carries the id Submit and Fund log under.
const RequestIDHeader = "x-request-id"

// FundRequestSize is the Fund payload: address (32) || lamports (u64 LE).
const FundRequestSize = address.Size + 8

// HeadWriter records the latest snapshot CID.
type HeadWriter interface {
	Write(id cid.Cid) error
}

// Server exposes a runtime over the Vault gRPC service. After every committed
// change it saves a bank snapshot to Snapshots and moves Head to it.
type Server struct {
	UnimplementedVaultServer

	Runtime *runtime.Runtime
	// Snapshots is optional; without it Submit and Fund return an empty CID.
	Snapshots storage.CAS
	// Head is optional.
	Head HeadWriter
	// Faucet enables the Fund method.
	Faucet bool
	Log    *zap.Logger

	mu sync.Mutex
}

func (s *Server) Submit(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Runtime == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing runtime")
	}
	tx, err := instruction.Unmarshal(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	log := s.requestLogger(ctx, "Submit")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Runtime.Execute(ctx, tx); err != nil {
		return nil, toStatus(err)
	}
	id, err := s.persist(log)
	if err != nil {
		return nil, err
	}
	return wrapperspb.String(id), nil
}

func (s *Server) GetAccount(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Runtime == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing runtime")
	}
	addr, err := address.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	acct := s.Runtime.Bank().Account(addr)
	data, err := acct.MarshalBinary()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(data), nil
}

func (s *Server) Fund(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Runtime == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing runtime")
	}
	if !s.Faucet {
		return nil, status.Error(codes.PermissionDenied, "faucet is disabled")
	}
	b := in.GetValue()
	if len(b) != FundRequestSize {
		return nil, status.Errorf(codes.InvalidArgument, "fund request must be %d bytes", FundRequestSize)
	}
	addr, err := address.FromBytes(b[:address.Size])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	lamports := binary.LittleEndian.Uint64(b[address.Size:])
	log := s.requestLogger(ctx, "Fund")

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Runtime.Bank().Fund(addr, lamports); err != nil {
		if errors.Is(err, ledger.ErrOverflow) {
			return nil, status.Error(codes.OutOfRange, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	log.Info("faucet funded account", zap.String("address", addr.String()), zap.Uint64("lamports", lamports))

	id, err := s.persist(log)
	if err != nil {
		return nil, err
	}
	return wrapperspb.String(id), nil
}

// persist snapshots the bank. Callers hold s.mu so head moves in commit order.
func (s *Server) persist(log *zap.Logger) (string, error) {
	if s.Snapshots == nil {
		return "", nil
	}
	id, err := s.Runtime.Bank().Save(s.Snapshots)
	if err != nil {
		log.With(zap.Error(err)).Error("snapshot save failed after commit")
		return "", status.Error(codes.Internal, err.Error())
	}
	if s.Head != nil {
		if err := s.Head.Write(id); err != nil {
			log.With(zap.Error(err), zap.String("cid", id.String())).Error("head update failed after commit")
			return "", status.Error(codes.Internal, err.Error())
		}
	}
	log.Debug("snapshot persisted", zap.String("cid", id.String()))
	return id.String(), nil
}

// requestLogger tags a mutating call with a fresh request id. The id is also
// returned to the caller in the RequestIDHeader response header.
func (s *Server) requestLogger(ctx context.Context, method string) *zap.Logger {
	id := uuid.New().String()
	_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))
	return s.logger().With(zap.String("method", method), zap.String("request_id", id))
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// EncodeFundRequest builds the Fund payload.
func EncodeFundRequest(addr address.Address, lamports uint64) []byte {
	b := make([]byte, FundRequestSize)
	copy(b, addr[:])
	binary.LittleEndian.PutUint64(b[address.Size:], lamports)
	return b
}

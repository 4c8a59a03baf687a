package udptracker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/al002/ztracker/internal/tracker"
)

const (
	connectionIDMagic = 0x41727101980

	connectRequestSize   = 16
	connectResponseSize  = 16
	announceRequestSize  = 98
	announceResponseSize = 20
	headerSize           = 8
	compactPeerSize      = 6

	eventNone        int32 = 0
	numWantUnlimited int32 = -1
)

var (
	ErrTooShort          = errors.New("message too short")
	ErrMalformedPeerList = errors.New("peer list length is not a multiple of 6")
	// Returned when a well formed response does not answer the outstanding request.
	ErrProtocolMismatch = errors.New("response does not match outstanding request")
)

type DecodeError struct {
	Message string
	Size    int
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s of %d bytes: %v", e.Message, e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == tracker.ErrDecode
}

type connectRequest struct {
	ProtocolID    uint64
	Action        action
	TransactionID uint32
}

type connectResponse struct {
	Action        action
	TransactionID uint32
	ConnectionID  uint64
}

type announceRequest struct {
	ConnectionID  uint64
	Action        action
	TransactionID uint32
	InfoHash      [20]byte
	PeerID        [20]byte
	Downloaded    int64
	Left          int64
	Uploaded      int64
	Event         int32
	IP            uint32
	Key           uint32
	NumWant       int32
	Port          uint16
}

type announceResponse struct {
	Action        action
	TransactionID uint32
	Interval      int32
	Leechers      int32
	Seeders       int32
	Peers         []tracker.Peer
}

type errorResponse struct {
	Action        action
	TransactionID uint32
	Message       string
}

func marshal(data any) []byte {
	var buf bytes.Buffer
	// Writes of fixed size structs into a bytes.Buffer cannot fail.
	_ = binary.Write(&buf, binary.BigEndian, data)
	return buf.Bytes()
}

// encodeConnectRequest returns the connect message and the transaction id it carries.
func encodeConnectRequest() ([]byte, uint32) {
	req := connectRequest{
		ProtocolID:    connectionIDMagic,
		Action:        actionConnect,
		TransactionID: randomTransactionID(),
	}
	return marshal(&req), req.TransactionID
}

func decodeConnectResponse(b []byte) (*connectResponse, error) {
	if len(b) < connectResponseSize {
		return nil, &DecodeError{Message: "connect response", Size: len(b), Err: ErrTooShort}
	}

	return &connectResponse{
		Action:        action(binary.BigEndian.Uint32(b[0:4])),
		TransactionID: binary.BigEndian.Uint32(b[4:8]),
		ConnectionID:  binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// encodeAnnounceRequest returns the announce message and the transaction id it carries.
// Downloaded and uploaded are always zero and the tracker infers our IP from the packet.
func encodeAnnounceRequest(connectionID uint64, infoHash [20]byte, left int64, peerID [20]byte, port uint16) ([]byte, uint32) {
	req := announceRequest{
		ConnectionID:  connectionID,
		Action:        actionAnnounce,
		TransactionID: randomTransactionID(),
		InfoHash:      infoHash,
		PeerID:        peerID,
		Left:          left,
		Event:         eventNone,
		Key:           randomKey(),
		NumWant:       numWantUnlimited,
		Port:          port,
	}
	return marshal(&req), req.TransactionID
}

func decodeAnnounceResponse(b []byte) (*announceResponse, error) {
	if len(b) < announceResponseSize {
		return nil, &DecodeError{Message: "announce response", Size: len(b), Err: ErrTooShort}
	}

	peers, err := decodePeers(b[announceResponseSize:])
	if err != nil {
		return nil, &DecodeError{Message: "announce response", Size: len(b), Err: err}
	}

	return &announceResponse{
		Action:        action(binary.BigEndian.Uint32(b[0:4])),
		TransactionID: binary.BigEndian.Uint32(b[4:8]),
		Interval:      int32(binary.BigEndian.Uint32(b[8:12])),
		Leechers:      int32(binary.BigEndian.Uint32(b[12:16])),
		Seeders:       int32(binary.BigEndian.Uint32(b[16:20])),
		Peers:         peers,
	}, nil
}

func decodePeers(b []byte) ([]tracker.Peer, error) {
	if len(b)%compactPeerSize != 0 {
		return nil, ErrMalformedPeerList
	}

	peers := make([]tracker.Peer, 0, len(b)/compactPeerSize)
	for i := 0; i < len(b); i += compactPeerSize {
		p := b[i : i+compactPeerSize]
		peers = append(peers, tracker.Peer{
			IP:   strconv.Itoa(int(p[0])) + "." + strconv.Itoa(int(p[1])) + "." + strconv.Itoa(int(p[2])) + "." + strconv.Itoa(int(p[3])),
			Port: binary.BigEndian.Uint16(p[4:6]),
		})
	}

	return peers, nil
}

// decodeErrorResponse reads a BEP 15 error message, the text follows the header.
func decodeErrorResponse(b []byte) (*errorResponse, error) {
	if len(b) < headerSize {
		return nil, &DecodeError{Message: "error response", Size: len(b), Err: ErrTooShort}
	}

	return &errorResponse{
		Action:        action(binary.BigEndian.Uint32(b[0:4])),
		TransactionID: binary.BigEndian.Uint32(b[4:8]),
		Message:       string(bytes.TrimRight(b[headerSize:], "\x00")),
	}, nil
}

// peekHeader reads the action and transaction id common to every response.
func peekHeader(b []byte) (action, uint32, error) {
	if len(b) < headerSize {
		return 0, 0, &DecodeError{Message: "response header", Size: len(b), Err: ErrTooShort}
	}
	return action(binary.BigEndian.Uint32(b[0:4])), binary.BigEndian.Uint32(b[4:8]), nil
}

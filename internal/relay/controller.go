package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/peerdial/peerdial/internal/domain"
	"github.com/peerdial/peerdial/internal/proto"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller owns the signaling endpoint: one websocket per participant,
// messages forwarded between the two sides of a call.
type Controller struct {
	Registry   *Registry
	PingPeriod time.Duration
	ReadLimit  int64
}

func NewController(reg *Registry, pingPeriod time.Duration, readLimit int64) *Controller {
	return &Controller{Registry: reg, PingPeriod: pingPeriod, ReadLimit: readLimit}
}

// HandleSignal upgrades the connection and runs its pumps. Every connection
// gets a fresh transport id; the stable identity only arrives with the
// register message.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	cid := domain.ConnID(uuid.NewString())
	log.Info().Str("module", "relay").Str("conn", string(cid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("ws upgrade")
		return
	}

	conn := newWSConn(ws)
	ctl.Registry.Bind(cid, conn)

	// The gin context dies with this handler; keep only the token.
	clientToken := c.GetString("client_token")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cid, conn, cancel)
	go ctl.readPump(ctx, cid, conn, clientToken, cancel)
}

func (ctl *Controller) handleFrame(cid domain.ConnID, conn *wsConn, clientToken string, data []byte) {
	var env proto.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("conn", string(cid)).Msg("bad json")
		return
	}

	switch env.Type {
	case proto.TypeRegister:
		ctl.handleRegister(cid, conn, clientToken, data)
	case proto.TypeCallRequest:
		ctl.handleCallRequest(cid, conn, data)
	case proto.TypeCallAccepted:
		ctl.handleCallAccepted(cid, data)
	case proto.TypeCallRejected:
		ctl.handleCallRejected(cid, data)
	case proto.TypeOffer:
		ctl.handleOffer(cid, data)
	case proto.TypeAnswer:
		ctl.handleAnswer(cid, data)
	case proto.TypeIceCandidate:
		ctl.handleIceCandidate(cid, data)
	case proto.TypeEndCall:
		ctl.handleEndCall(cid)
	default:
		log.Warn().Str("module", "relay").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) sendJSON(conn *wsConn, v any) {
	b, err := proto.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("encode")
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("send dropped")
	}
}

func (ctl *Controller) sendError(conn *wsConn, reason string) {
	ctl.sendJSON(conn, &proto.Error{Type: proto.TypeError, Reason: reason})
}

func (ctl *Controller) handleRegister(cid domain.ConnID, conn *wsConn, clientToken string, data []byte) {
	var p proto.Register
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("bad register payload")
		return
	}

	callID := p.CallID
	if callID == "" {
		// Browser-style clients fall back to the cookie client token.
		callID = domain.CallID(clientToken)
	}

	participant, err := domain.NewParticipant(callID, p.DisplayName)
	if err != nil {
		ctl.sendError(conn, err.Error())
		return
	}
	if !ctl.Registry.Register(cid, participant) {
		ctl.sendError(conn, "call id already in use")
		return
	}
	ctl.sendJSON(conn, &proto.Registered{Type: proto.TypeRegistered, CallID: callID, ConnID: cid})
}

func (ctl *Controller) handleCallRequest(cid domain.ConnID, conn *wsConn, data []byte) {
	var p proto.CallRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("bad call_request payload")
		return
	}

	caller, ok := ctl.Registry.Participant(cid)
	if !ok {
		ctl.sendError(conn, "not registered")
		return
	}
	targetCID, targetConn, ok := ctl.Registry.Lookup(p.TargetCallID)
	if !ok {
		ctl.sendError(conn, "user not found or offline")
		return
	}

	// A busy target keeps its current pairing; its client rejects the ring.
	if !ctl.Registry.Pair(cid, targetCID) {
		log.Info().Str("module", "relay").Str("target", string(p.TargetCallID)).Msg("target already paired, forwarding ring unpaired")
	}
	ctl.sendJSON(targetConn, &proto.CallRequest{
		Type:       proto.TypeCallRequest,
		From:       cid,
		FromCallID: caller.CallID,
		FromName:   caller.DisplayName,
	})
	log.Info().Str("module", "relay").Str("from", string(caller.CallID)).Str("to", string(p.TargetCallID)).Msg("call ringing")
}

func (ctl *Controller) handleCallAccepted(cid domain.ConnID, data []byte) {
	var p proto.CallAccepted
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("bad call_accepted payload")
		return
	}
	conn, ok := ctl.Registry.Conn(p.To)
	if !ok {
		return
	}
	ctl.sendJSON(conn, &proto.CallAccepted{Type: proto.TypeCallAccepted, From: cid})
}

func (ctl *Controller) handleCallRejected(cid domain.ConnID, data []byte) {
	var p proto.CallRejected
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("bad call_rejected payload")
		return
	}
	conn, ok := ctl.Registry.Conn(p.To)
	if !ok {
		return
	}
	ctl.Registry.Unpair(cid, p.To)
	ctl.sendJSON(conn, &proto.CallRejected{Type: proto.TypeCallRejected, From: cid, Reason: p.Reason})
}

func (ctl *Controller) handleOffer(cid domain.ConnID, data []byte) {
	var p proto.Offer
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("bad offer payload")
		return
	}
	conn, ok := ctl.Registry.Conn(p.To)
	if !ok {
		return
	}
	ctl.sendJSON(conn, &proto.Offer{Type: proto.TypeOffer, SDP: p.SDP, From: cid})
}

func (ctl *Controller) handleAnswer(cid domain.ConnID, data []byte) {
	var p proto.Answer
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("bad answer payload")
		return
	}
	conn, ok := ctl.Registry.Conn(p.To)
	if !ok {
		return
	}
	ctl.sendJSON(conn, &proto.Answer{Type: proto.TypeAnswer, SDP: p.SDP, From: cid})
}

func (ctl *Controller) handleIceCandidate(cid domain.ConnID, data []byte) {
	var p proto.IceCandidate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("bad candidate payload")
		return
	}
	conn, ok := ctl.Registry.Conn(p.To)
	if !ok {
		return
	}
	ctl.sendJSON(conn, &proto.IceCandidate{Type: proto.TypeIceCandidate, Candidate: p.Candidate, From: cid})
}

// handleEndCall routes a hangup to the tracked counterpart; the client does
// not name a target here.
func (ctl *Controller) handleEndCall(cid domain.ConnID) {
	peer, ok := ctl.Registry.PeerOf(cid)
	if !ok {
		return
	}
	ctl.Registry.Unpair(cid, peer)
	conn, ok := ctl.Registry.Conn(peer)
	if !ok {
		return
	}
	participant, _ := ctl.Registry.Participant(cid)
	end := &proto.EndCall{Type: proto.TypeEndCall, From: cid}
	if participant != nil {
		end.FromCallID = participant.CallID
	}
	ctl.sendJSON(conn, end)
	log.Info().Str("module", "relay").Str("conn", string(cid)).Msg("call ended")
}

// onDisconnect turns an abrupt socket loss into an end_call toward the
// counterpart, so the other side never hangs waiting.
func (ctl *Controller) onDisconnect(cid domain.ConnID) {
	peer, participant := ctl.Registry.Unregister(cid)
	if peer == "" {
		return
	}
	conn, ok := ctl.Registry.Conn(peer)
	if !ok {
		return
	}
	end := &proto.EndCall{Type: proto.TypeEndCall, From: cid}
	if participant != nil {
		end.FromCallID = participant.CallID
	}
	ctl.sendJSON(conn, end)
	log.Info().Str("module", "relay").Str("conn", string(cid)).Msg("disconnect propagated as end_call")
}

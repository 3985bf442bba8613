package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"riftgate.ai/internal/logging"
	"riftgate.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		playerID = flag.String("player", "", "player uuid (default: random)")
		every    = flag.Duration("every", 3*time.Second, "interval between actions")
	)
	flag.Parse()

	logger, _ := logging.NewWriter(os.Stdout, "info", "bot", true)

	id := uuid.New()
	if *playerID != "" {
		parsed, err := uuid.Parse(*playerID)
		if err != nil {
			logger.Fatal().Err(err).Msg("player id")
		}
		id = parsed
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial")
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerID:        id.String(),
		PlayerName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatal().Err(err).Msg("send HELLO")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	done := make(chan struct{})

	// Reader.
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Info().Err(err).Msg("connection closed")
				close(done)
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeWelcome:
				var w protocol.WelcomeMsg
				if err := json.Unmarshal(msg, &w); err != nil {
					continue
				}
				logger.Info().Str("session", w.SessionID).Str("realm", w.CurrentRealm).Int("tick_rate", w.Params.TickRateHz).Msg("WELCOME")
			case protocol.TypeAffinityChanged, protocol.TypeAffinityUI:
				var m protocol.AffinityUIMsg
				if err := json.Unmarshal(msg, &m); err != nil {
					continue
				}
				es, err := protocol.DecodeEntries(m.Entries)
				if err != nil {
					continue
				}
				logger.Info().Str("type", base.Type).Interface("entries", es).Msg("affinities")
			case protocol.TypeMessage:
				var m protocol.MessageMsg
				if err := json.Unmarshal(msg, &m); err != nil {
					continue
				}
				logger.Info().Str("code", m.Code).Msg(m.Text)
			}
		}
	}()

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	var n int
	for {
		select {
		case <-stop:
			return
		case <-done:
			return
		case <-ticker.C:
		}
		n++
		if err := conn.WriteJSON(nextAction(n)); err != nil {
			logger.Error().Err(err).Msg("send")
			return
		}
	}
}

// nextAction cycles through consuming a tome, casting the staff and inspecting affinities.
func nextAction(n int) any {
	reqID := fmt.Sprintf("bot_%d", n)
	switch n % 3 {
	case 1:
		return protocol.ConsumeItemMsg{Type: protocol.TypeConsumeItem, ProtocolVersion: protocol.Version, ReqID: reqID,
			Item: protocol.ItemAffinityTome, Affinity: []string{"FIRE", "WATER", "EARTH", "AIR"}[rand.IntN(4)]}
	case 2:
		facing := [][3]int{{1, 0, 0}, {-1, 0, 0}, {0, 0, 1}, {0, 0, -1}}[rand.IntN(4)]
		return protocol.UseStaffMsg{Type: protocol.TypeUseStaff, ProtocolVersion: protocol.Version, ReqID: reqID, Facing: facing}
	default:
		return protocol.OpenAffinityUIMsg{Type: protocol.TypeOpenAffinityUI, ProtocolVersion: protocol.Version, ReqID: reqID}
	}
}

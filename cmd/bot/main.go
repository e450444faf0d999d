package main

import (
	"encoding/json"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"simbridge.ai/internal/logging"
	"simbridge.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/ws", "ws url")
		every = flag.Int("every", 5, "act on every n-th state")
		level = flag.String("log_level", "info", "log level")
	)
	flag.Parse()

	log := logging.New(*level, "text").WithField("component", "bot")
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.WithError(err).Fatal("dial")
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	b := &bot{every: *every, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeConnected:
			var m protocol.ConnectedMsg
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			log.WithField("conn", m.ConnID).Info(m.Message)

		case protocol.TypeState:
			var m protocol.StateMsg
			if err := json.Unmarshal(msg, &m); err != nil || m.Data == nil {
				continue
			}
			if cmd, ok := b.next(m.Data); ok {
				log.WithFields(logrus.Fields{"tick": m.Data.Tick, "kind": cmd.Type}).Debug("act")
				_ = conn.WriteJSON(cmd)
			}

		case protocol.TypeError:
			var m protocol.ErrorMsg
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			log.WithField("code", m.Code).Warn(m.Message)
		}
	}
}

type bot struct {
	every  int
	states int
	rng    *rand.Rand
}

// next picks the bot's command for snap: continue an open dialog, talk to
// the nearest willing NPC, or wander a few tiles.
func (b *bot) next(snap *protocol.Snapshot) (protocol.Command, bool) {
	b.states++
	if !snap.InGame || snap.Player == nil || b.every <= 0 || b.states%b.every != 0 {
		return protocol.Command{}, false
	}
	if snap.Dialog.IsOpen && len(snap.Dialog.Options) == 0 {
		return protocol.Command{Type: protocol.KindContinueDialog}, true
	}
	if npc, ok := nearestTalker(snap.NearbyNpcs); ok && b.rng.Intn(2) == 0 {
		return protocol.Command{Type: protocol.KindTalkToNpc, NpcIndex: protocol.Int(npc.Index)}, true
	}
	x := snap.Player.WorldX + b.rng.Intn(11) - 5
	z := snap.Player.WorldZ + b.rng.Intn(11) - 5
	return protocol.Command{Type: protocol.KindWalkTo, X: protocol.Int(x), Z: protocol.Int(z)}, true
}

func nearestTalker(npcs []protocol.Entity) (protocol.Entity, bool) {
	var best protocol.Entity
	found := false
	for _, n := range npcs {
		if !hasOption(n.Options, "talk-to") {
			continue
		}
		if !found || n.Distance < best.Distance {
			best, found = n, true
		}
	}
	return best, found
}

func hasOption(opts []string, want string) bool {
	for _, o := range opts {
		if strings.EqualFold(o, want) {
			return true
		}
	}
	return false
}

package app

import "flashquiz-server/internal/protocol"

// broadcastLeaderboard recomputes the ranking and fans it out to every live
// connection, including the one that triggered the update. The snapshot and
// the target list are taken under the registry lock; the sends happen outside
// it. A failed send is swallowed so one dead socket cannot stop delivery to
// the rest.
func (e *Engine) broadcastLeaderboard() {
	entries := e.registry.Snapshot()
	targets := e.registry.BroadcastTargets()

	msg := protocol.LeaderboardMessage{
		Type:        protocol.TypeLeaderboard,
		Leaderboard: entries,
	}
	for _, target := range targets {
		_ = target.Send(msg)
	}
}

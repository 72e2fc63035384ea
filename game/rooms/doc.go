// Package rooms runs the hub's lobby and its song-voting rooms.
//
// A Room groups lobby clients into one session that cycles through three
// states:
//
//	Voting ──timer──▶ Preparing ──timer──▶ Playing ──song over──▶ Voting
//
// While Voting, members vote for a song and the lobby timer counts down. When
// it expires the song with the most votes wins; ties go to the song that
// received its first vote earliest. Without votes the room plays the song
// after the previous one. Preparing gives members time to download the
// selected song, and Playing lasts the song's duration or until every member
// reported the song finished. A room that loses its last member is destroyed
// whatever its state.
//
// Late joins are allowed in every state: the new member is told the current
// state and, once a song is selected, which song to load.
//
// Concurrency:
//
// Controller owns the lobby and every room. Connection workers talk to it by
// sending events (connect, join, vote, disconnect, ...) that a single
// goroutine started with Run applies one at a time. Reads used by the status
// API (Rooms, Room, Stats) take a read lock and never wait for the loop. Only
// the hub loop calls Tick, so room timers have a single writer.
//
// Usage:
//
//	ctrl := rooms.NewController(rooms.Options{LobbyTime: 60 * time.Second, Songs: songs})
//	go ctrl.Run(ctx)
//
//	ctrl.Connect(ctx, member)
//	info, err := ctrl.CreateRoom(ctx, member, rooms.RoomOptions{Name: "Expert+ only"})
//	err = ctrl.Vote(ctx, member, songs[0].LevelID)
package rooms

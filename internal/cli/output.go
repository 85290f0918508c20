package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case Room:
		o.printRoom(v)
	case Transition:
		o.printTransition(v)
	case UpdatePlayerResult:
		o.printParticipant(v.Player)
	case Players:
		o.printPlayers(v)
	case CleanupResult:
		o.printCleanup(v)
	case RelayStats:
		fmt.Printf("Cached rooms: %d\n", v.CachedRooms)
		fmt.Printf("Live rooms: %d\n", v.LiveRooms)
	case SaveMatchResult:
		o.printSaveMatch(v)
	case MatchList:
		o.printMatchList(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Ship response type
type Ship struct {
	Rarity string `json:"rarity"`
	Name   string `json:"name"`
	Class  string `json:"class"`
	Image  string `json:"image"`
}

// Room response type (matches API)
type Room struct {
	RoomCode      string    `json:"roomCode"`
	Mode          string    `json:"mode"`
	HostAddress   string    `json:"hostAddress"`
	GuestAddress  *string   `json:"guestAddress"`
	HostReady     bool      `json:"hostReady"`
	GuestReady    bool      `json:"guestReady"`
	Status        string    `json:"status"`
	Seed          int64     `json:"seed"`
	CreatedAt     time.Time `json:"createdAt"`
	HostShip      *Ship     `json:"hostShip,omitempty"`
	GuestShip     *Ship     `json:"guestShip"`
	AlreadyJoined bool      `json:"alreadyJoined,omitempty"`
}

// Transition response type for start and finish
type Transition struct {
	Success bool  `json:"success"`
	Room    *Room `json:"room"`
}

// Participant response type
type Participant struct {
	Address    string  `json:"address"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Health     float64 `json:"health"`
	ShipImage  string  `json:"shipImage,omitempty"`
	ShipRarity string  `json:"shipRarity,omitempty"`
	Score      int64   `json:"score"`
	Coins      int64   `json:"coins"`
	Timestamp  int64   `json:"timestamp"`
}

// UpdatePlayerResult response type
type UpdatePlayerResult struct {
	Success bool        `json:"success"`
	Player  Participant `json:"player"`
}

// Players response type
type Players struct {
	Players []Participant `json:"players"`
}

// CleanupResult response type
type CleanupResult struct {
	Success        bool `json:"success"`
	PlayersRemoved int  `json:"playersRemoved"`
	RoomsRemoved   int  `json:"roomsRemoved"`
	ShipsRemoved   int  `json:"shipsRemoved"`
}

// RelayStats response type
type RelayStats struct {
	CachedRooms int `json:"cached_rooms"`
	LiveRooms   int `json:"live_rooms"`
}

// Match response type
type Match struct {
	ID        string    `json:"id"`
	RoomCode  *string   `json:"roomCode"`
	Address   string    `json:"address"`
	Score     int64     `json:"score"`
	Coins     int64     `json:"coins"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"createdAt"`
}

// SaveMatchResult response type
type SaveMatchResult struct {
	Match     Match `json:"match"`
	Duplicate bool  `json:"duplicate"`
}

// MatchList response type
type MatchList struct {
	Matches []Match `json:"matches"`
}

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (o *Output) printShip(label string, s *Ship) {
	if s == nil {
		return
	}
	fmt.Printf("%s: %s %s (%s)\n", label, s.Rarity, s.Name, s.Class)
}

func (o *Output) printRoom(r Room) {
	fmt.Printf("Room: %s\n", r.RoomCode)
	fmt.Printf("Mode: %s\n", r.Mode)
	fmt.Printf("Status: %s\n", r.Status)
	fmt.Printf("Seed: %d\n", r.Seed)
	fmt.Printf("Host: %s (ready: %s)\n", r.HostAddress, yesNo(r.HostReady))
	if r.GuestAddress != nil {
		fmt.Printf("Guest: %s (ready: %s)\n", *r.GuestAddress, yesNo(r.GuestReady))
	} else {
		fmt.Println("Guest: -")
	}
	o.printShip("Host ship", r.HostShip)
	o.printShip("Guest ship", r.GuestShip)
	if r.AlreadyJoined {
		fmt.Println("Already joined")
	}
}

func (o *Output) printTransition(t Transition) {
	if t.Room == nil {
		fmt.Println("Room not found; nothing to do")
		return
	}
	fmt.Printf("Room %s is %s\n", t.Room.RoomCode, t.Room.Status)
}

func (o *Output) printParticipant(p Participant) {
	fmt.Printf("  %s: pos (%.1f, %.1f) health %.0f score %d coins %d\n",
		p.Address, p.X, p.Y, p.Health, p.Score, p.Coins)
}

func (o *Output) printPlayers(p Players) {
	if len(p.Players) == 0 {
		fmt.Println("No other players")
		return
	}
	fmt.Printf("Players (%d):\n", len(p.Players))
	for _, player := range p.Players {
		o.printParticipant(player)
	}
}

func (o *Output) printCleanup(c CleanupResult) {
	fmt.Printf("Players removed: %d\n", c.PlayersRemoved)
	fmt.Printf("Rooms removed: %d\n", c.RoomsRemoved)
	fmt.Printf("Ships removed: %d\n", c.ShipsRemoved)
}

func (o *Output) printMatch(m Match) {
	room := "-"
	if m.RoomCode != nil {
		room = *m.RoomCode
	}
	fmt.Printf("  %s  room %s  score %d  coins %d  %s  %s\n",
		m.ID, room, m.Score, m.Coins, m.Mode, m.CreatedAt.Format(time.RFC3339))
}

func (o *Output) printSaveMatch(s SaveMatchResult) {
	if s.Duplicate {
		fmt.Println("Duplicate submission; existing match returned")
	} else {
		fmt.Println("Match saved")
	}
	o.printMatch(s.Match)
}

func (o *Output) printMatchList(l MatchList) {
	if len(l.Matches) == 0 {
		fmt.Println("No matches")
		return
	}
	fmt.Printf("Matches (%d):\n", len(l.Matches))
	for _, m := range l.Matches {
		o.printMatch(m)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Printf("Status: %s\n", h.Status)
	if h.Store != "" {
		fmt.Printf("Store: %s\n", h.Store)
	}
}

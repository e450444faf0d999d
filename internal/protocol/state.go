package protocol

// Snapshot is one full broadcast of observable state. All slices are
// non-nil once built by the assembler.
type Snapshot struct {
	Tick          int           `json:"tick"`
	InGame        bool          `json:"inGame"`
	GameState     string        `json:"gameState"`
	CurrentWorld  int           `json:"currentWorld"`
	CurrentPlane  int           `json:"currentPlane"`
	AccountName   string        `json:"accountName"`
	Player        *Player       `json:"player"`
	Skills        []Skill       `json:"skills"`
	Inventory     []Item        `json:"inventory"`
	Equipment     []Item        `json:"equipment"`
	NearbyNpcs    []Entity      `json:"nearbyNpcs"`
	NearbyPlayers []Entity      `json:"nearbyPlayers"`
	NearbyLocs    []Entity      `json:"nearbyLocs"`
	GroundItems   []Entity      `json:"groundItems"`
	GameMessages  []GameMessage `json:"gameMessages"`
	Dialog        Dialog        `json:"dialog"`
	Shop          Shop          `json:"shop"`
	Bank          Bank          `json:"bank"`
	ModalOpen     bool          `json:"modalOpen"`
}

type Player struct {
	Name        string `json:"name"`
	CombatLevel int    `json:"combatLevel"`
	X           int    `json:"x"`
	Z           int    `json:"z"`
	WorldX      int    `json:"worldX"`
	WorldZ      int    `json:"worldZ"`
	Level       int    `json:"level"`
	RunEnergy   int    `json:"runEnergy"`
	RunWeight   int    `json:"runWeight"`
	AnimID      int    `json:"animId"`
	SpotanimID  int    `json:"spotanimId"`
	Combat      Combat `json:"combat"`
}

type Combat struct {
	InCombat       bool `json:"inCombat"`
	TargetIndex    int  `json:"targetIndex"`
	LastDamageTick int  `json:"lastDamageTick"`
}

type Skill struct {
	Name       string `json:"name"`
	Level      int    `json:"level"`
	BaseLevel  int    `json:"baseLevel"`
	Experience int    `json:"experience"`
}

type Option struct {
	Text    string `json:"text"`
	OpIndex int    `json:"opIndex"`
}

// Entity categories.
const (
	CategoryNPC        = "npc"
	CategoryPlayer     = "player"
	CategoryObject     = "object"
	CategoryGroundItem = "ground_item"
)

// Entity is the one shape shared by every nearby category. Category-specific
// fields are omitted when they do not apply.
type Entity struct {
	Category         string   `json:"category"`
	Index            int      `json:"index"`
	ID               int      `json:"id"`
	Name             string   `json:"name"`
	X                int      `json:"x"`
	Z                int      `json:"z"`
	Level            int      `json:"level"`
	Distance         int      `json:"distance"`
	OptionsWithIndex []Option `json:"optionsWithIndex"`
	Options          []string `json:"options"`

	CombatLevel   *int   `json:"combatLevel,omitempty"`
	Count         *int   `json:"count,omitempty"`
	HP            *int   `json:"hp,omitempty"`
	MaxHP         *int   `json:"maxHp,omitempty"`
	HealthPercent *int   `json:"healthPercent,omitempty"`
	InCombat      *bool  `json:"inCombat,omitempty"`
	TargetIndex   *int   `json:"targetIndex,omitempty"`
	AnimID        *int   `json:"animId,omitempty"`
	SpotanimID    *int   `json:"spotanimId,omitempty"`
	Kind          string `json:"kind,omitempty"`
}

type Item struct {
	Slot             int      `json:"slot"`
	ID               int      `json:"id"`
	Name             string   `json:"name"`
	Count            int      `json:"count"`
	OptionsWithIndex []Option `json:"optionsWithIndex"`
}

type GameMessage struct {
	Type   int    `json:"type"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
	Tick   int    `json:"tick"`
}

type DialogOption struct {
	Index       int    `json:"index"`
	Text        string `json:"text"`
	ComponentID int    `json:"componentId"`
}

type Dialog struct {
	IsOpen    bool           `json:"isOpen"`
	IsWaiting bool           `json:"isWaiting"`
	Text      string         `json:"text"`
	Options   []DialogOption `json:"options"`
}

type Shop struct {
	IsOpen      bool   `json:"isOpen"`
	Title       string `json:"title"`
	ShopItems   []Item `json:"shopItems"`
	PlayerItems []Item `json:"playerItems"`
}

type Bank struct {
	IsOpen bool   `json:"isOpen"`
	Items  []Item `json:"items"`
}

package protocol

import "strings"

// GameMode is the rule set of a match.
type GameMode int

const (
	ModeTDM GameMode = iota
	ModeCoop
	ModeDM
	ModeSurvivor
	ModeTeamSurvivor
	ModeCTF
	ModePistolFrenzy
	ModeBotTDM
	ModeBotDM
	ModeLSS
	ModeOSOK
	ModeTeamOSOK
	ModeBotOSOK
	ModeHTF
	ModeTKTF
	ModeKTF
	NumGameModes
)

var modeNames = [NumGameModes]struct{ full, short string }{
	{"team deathmatch", "tdm"},
	{"coopedit", "coop"},
	{"deathmatch", "dm"},
	{"survivor", "surv"},
	{"team survivor", "tsurv"},
	{"ctf", "ctf"},
	{"pistol frenzy", "pf"},
	{"bot team deathmatch", "btdm"},
	{"bot deathmatch", "bdm"},
	{"last swiss standing", "lss"},
	{"one shot, one kill", "osok"},
	{"team one shot, one kill", "tosok"},
	{"bot one shot, one kill", "bosok"},
	{"hunt the flag", "htf"},
	{"team keep the flag", "tktf"},
	{"keep the flag", "ktf"},
}

// Valid reports whether m is a known mode.
func (m GameMode) Valid() bool { return m >= 0 && m < NumGameModes }

func (m GameMode) String() string {
	if !m.Valid() {
		return "unknown"
	}
	return modeNames[m].full
}

// Short returns the abbreviated mode name used in file names and configs.
func (m GameMode) Short() string {
	if !m.Valid() {
		return "unknown"
	}
	return modeNames[m].short
}

// ParseMode accepts a short or full mode name.
func ParseMode(s string) (GameMode, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n.short == s || n.full == s {
			return GameMode(i), true
		}
	}
	return 0, false
}

// Teams reports whether players are split into two teams.
func (m GameMode) Teams() bool {
	switch m {
	case ModeTDM, ModeTeamSurvivor, ModeCTF, ModeBotTDM, ModeTeamOSOK, ModeHTF, ModeTKTF:
		return true
	}
	return false
}

// Arena reports whether rounds end when one side is wiped out.
func (m GameMode) Arena() bool {
	switch m {
	case ModeSurvivor, ModeTeamSurvivor, ModeLSS, ModeOSOK, ModeTeamOSOK, ModeBotOSOK:
		return true
	}
	return false
}

// Flags reports whether the mode uses the two-flag objective.
func (m GameMode) Flags() bool {
	return m == ModeCTF || m == ModeHTF || m == ModeTKTF || m == ModeKTF
}

// KeepTheFlag reports the keep-the-flag variants.
func (m GameMode) KeepTheFlag() bool { return m == ModeTKTF || m == ModeKTF }

// Bots reports modes played against bots.
func (m GameMode) Bots() bool {
	return m == ModeBotTDM || m == ModeBotDM || m == ModeBotOSOK
}

// Multiplayer reports modes a dedicated server hosts and records.
func (m GameMode) Multiplayer() bool {
	return m.Valid() && !m.Bots() && m != ModeCoop
}

package entity

// Players - user identifiers seated at each mark. Empty means the slot is free.
type Players struct {
	X string `json:"X"`
	O string `json:"O"`
}

func (that Players) Of(mark Mark) string {
	switch mark {
	case MarkX:
		return that.X
	case MarkO:
		return that.O
	default:
		return ""
	}
}

// MarkOf - the mark held by userID, or MarkNone.
func (that Players) MarkOf(userID string) Mark {
	switch {
	case userID == "":
		return MarkNone
	case that.X == userID:
		return MarkX
	case that.O == userID:
		return MarkO
	default:
		return MarkNone
	}
}

// With - copy with mark's slot set to userID.
func (that Players) With(mark Mark, userID string) Players {
	switch mark {
	case MarkX:
		that.X = userID
	case MarkO:
		that.O = userID
	}

	return that
}

func (that Players) Both() bool {
	return that.X != "" && that.O != ""
}

func (that Players) Count() int {
	count := 0
	if that.X != "" {
		count++
	}
	if that.O != "" {
		count++
	}

	return count
}

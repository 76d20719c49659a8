package model

// Owner identifies a cart owner: an authenticated user or an anonymous
// session, never both.
type Owner struct {
	UserID    *string
	SessionID *string
}

func UserOwner(id string) Owner    { return Owner{UserID: &id} }
func SessionOwner(id string) Owner { return Owner{SessionID: &id} }

// Valid reports whether exactly one identity is set.
func (o Owner) Valid() bool {
	return (o.UserID != nil) != (o.SessionID != nil)
}

// Key is the lock and log key for this owner.
func (o Owner) Key() string {
	if o.UserID != nil {
		return "user:" + *o.UserID
	}
	if o.SessionID != nil {
		return "session:" + *o.SessionID
	}
	return ""
}

// Owns reports whether the given cart item belongs to this owner.
func (o Owner) Owns(item *CartItem) bool {
	if o.UserID != nil {
		return item.UserID != nil && *item.UserID == *o.UserID
	}
	if o.SessionID != nil {
		return item.SessionID != nil && *item.SessionID == *o.SessionID
	}
	return false
}

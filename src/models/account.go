package models

// -----------------------------------------------------------------------------

// MUser is an authenticated principal. Password holds the SHA-1 hex digest,
// never the plaintext.
type MUser struct {
	ID          int64
	Name        string
	Password    string
	IsAdmin     bool
	IsDisabled  bool
	SubAccounts map[int64]*MSubAccount
}

// -----------------------------------------------------------------------------

// GetSubAccount returns the owned sub-account or nil.
func (u *MUser) GetSubAccount(id int64) *MSubAccount {
	if u == nil {
		return nil
	}
	return u.SubAccounts[id]
}

// -----------------------------------------------------------------------------

// OwnsSubAccount reports whether the user owns the sub-account. Admins own
// everything for permission purposes.
func (u *MUser) OwnsSubAccount(id int64) bool {
	if u == nil {
		return false
	}
	if u.IsAdmin {
		return true
	}
	_, ok := u.SubAccounts[id]
	return ok
}

// -----------------------------------------------------------------------------

// MSubAccount is a tradable account owned by one or more users.
// BrokerAccounts is keyed by exchange id.
type MSubAccount struct {
	ID             int64
	Name           string
	BrokerAccounts map[int64]*MBrokerAccount
}

// -----------------------------------------------------------------------------

// GetBrokerAccount resolves the broker account used on the given exchange.
func (a *MSubAccount) GetBrokerAccount(exchangeID int64) *MBrokerAccount {
	if a == nil {
		return nil
	}
	return a.BrokerAccounts[exchangeID]
}

// -----------------------------------------------------------------------------

// MBrokerAccount names the clearing account at one connectivity adapter.
type MBrokerAccount struct {
	ID      int64
	Name    string
	Adapter string
}

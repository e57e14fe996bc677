package auth

// CookieStore defines the interface for session cookie storage
// This allows us to mock the keyring in tests
type CookieStore interface {
	SaveCookie(baseURL, cookie string) error
	LoadCookie(baseURL string) (string, error)
	DeleteCookie(baseURL string) error
}

// keyringStore implements CookieStore using the OS keyring
type keyringStore struct{}

var Default CookieStore = &keyringStore{}

func (k *keyringStore) SaveCookie(baseURL, cookie string) error {
	return SaveCookie(baseURL, cookie)
}

func (k *keyringStore) LoadCookie(baseURL string) (string, error) {
	return LoadCookie(baseURL)
}

func (k *keyringStore) DeleteCookie(baseURL string) error {
	return DeleteCookie(baseURL)
}

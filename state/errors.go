package state

type RegistryError string

func (r RegistryError) Error() string {
	return string(r)
}

const (
	ErrNotFound       = RegistryError("not found")
	ErrDuplicateId    = RegistryError("switch with id already exists")
	ErrMalformedInput = RegistryError("malformed input")
)

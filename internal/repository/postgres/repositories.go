package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users        *UserRepository
	Options      *OptionRepository
	ResetKeys    *ResetKeyRepository
	UserRequests *UserRequestRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool pgTxStarter) *Repositories {
	return &Repositories{
		Users:        NewUserRepository(pool),
		Options:      NewOptionRepository(pool),
		ResetKeys:    NewResetKeyRepository(pool),
		UserRequests: NewUserRequestRepository(pool),
	}
}

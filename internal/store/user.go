package store

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"clinic-booking/internal/model"
	"clinic-booking/internal/storage"
)

var (
	ErrNotReady     = errors.New("users not initialized")
	ErrEmailTaken   = errors.New("email already registered")
	ErrUserNotFound = errors.New("user not found")
)

// Users keeps the registered users in memory for sign-in lookups. The
// backend stays the source of truth for writes.
type Users struct {
	coll *collection[model.RegisteredUser]
	log  *logrus.Logger

	mu    sync.RWMutex
	ready bool
	list  []model.RegisteredUser
}

func newUsers(svc *storage.Service) *Users {
	return &Users{
		coll: newCollection[model.RegisteredUser](svc, storage.KeyRegisteredUsers),
		log:  svc.Logger(),
	}
}

// Initialize loads the stored users. A failed load leaves an empty list but
// still marks the repository ready.
func (u *Users) Initialize(ctx context.Context) {
	list, err := u.coll.load(ctx)
	if err != nil {
		u.log.WithFields(logrus.Fields{
			"Function": "Users.Initialize",
			"Error":    err,
		}).Warn("failed to load registered users, starting empty")
		list = nil
	}

	u.mu.Lock()
	u.list = list
	u.ready = true
	u.mu.Unlock()

	u.log.WithFields(logrus.Fields{
		"Function": "Users.Initialize",
		"Count":    len(list),
	}).Info("registered users loaded")
}

func (u *Users) Ready() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.ready
}

func (u *Users) snapshot() ([]model.RegisteredUser, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if !u.ready {
		return nil, ErrNotReady
	}
	return u.list, nil
}

func (u *Users) publish(list []model.RegisteredUser) {
	u.mu.Lock()
	u.list = list
	u.mu.Unlock()
}

func (u *Users) List() ([]model.RegisteredUser, error) {
	list, err := u.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]model.RegisteredUser, len(list))
	copy(out, list)
	return out, nil
}

// ByEmail matches case-insensitively.
func (u *Users) ByEmail(email string) (model.RegisteredUser, error) {
	list, err := u.snapshot()
	if err != nil {
		return model.RegisteredUser{}, err
	}
	for _, it := range list {
		if strings.EqualFold(it.Email, email) {
			return it, nil
		}
	}
	return model.RegisteredUser{}, ErrUserNotFound
}

func (u *Users) ByID(id string) (model.RegisteredUser, error) {
	list, err := u.snapshot()
	if err != nil {
		return model.RegisteredUser{}, err
	}
	for _, it := range list {
		if it.ID == id {
			return it, nil
		}
	}
	return model.RegisteredUser{}, ErrUserNotFound
}

func emailTaken(list []model.RegisteredUser, email, exceptID string) bool {
	for _, it := range list {
		if it.ID != exceptID && strings.EqualFold(it.Email, email) {
			return true
		}
	}
	return false
}

// Register appends a new user. The password must already be hashed.
func (u *Users) Register(ctx context.Context, user model.RegisteredUser) error {
	if !u.Ready() {
		return ErrNotReady
	}
	if err := user.Validate(); err != nil {
		return storage.NewError("add", storage.KeyRegisteredUsers, storage.ErrValidation, err)
	}

	u.coll.mu.Lock()
	defer u.coll.mu.Unlock()

	list, err := u.coll.raw(ctx)
	if err != nil {
		return err
	}
	if emailTaken(list, user.Email, "") {
		return ErrEmailTaken
	}
	next := make([]model.RegisteredUser, 0, len(list)+1)
	next = append(next, list...)
	next = append(next, user)
	if err := u.coll.writeLocked(ctx, next); err != nil {
		return err
	}
	u.publish(validOnly(next))
	return nil
}

// UserPatch is a shallow merge over a stored user.
type UserPatch struct {
	Name      *string
	Email     *string
	Image     *string
	Specialty *string
	Password  *string // already hashed
}

func (p UserPatch) apply(it model.RegisteredUser) model.RegisteredUser {
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Email != nil {
		it.Email = *p.Email
	}
	if p.Image != nil {
		it.Image = *p.Image
	}
	if p.Specialty != nil {
		it.Specialty = *p.Specialty
	}
	if p.Password != nil {
		it.Password = *p.Password
	}
	return it
}

func (u *Users) UpdateProfile(ctx context.Context, id string, p UserPatch) (model.RegisteredUser, error) {
	if !u.Ready() {
		return model.RegisteredUser{}, ErrNotReady
	}

	u.coll.mu.Lock()
	defer u.coll.mu.Unlock()

	list, err := u.coll.raw(ctx)
	if err != nil {
		return model.RegisteredUser{}, err
	}
	if p.Email != nil && emailTaken(list, *p.Email, id) {
		return model.RegisteredUser{}, ErrEmailTaken
	}

	var updated model.RegisteredUser
	found := false
	next := make([]model.RegisteredUser, len(list))
	for i, it := range list {
		if it.ID == id && it.Validate() == nil {
			it = p.apply(it)
			if err := it.Validate(); err != nil {
				return model.RegisteredUser{}, storage.NewError("update", storage.KeyRegisteredUsers, storage.ErrValidation, err)
			}
			updated = it
			found = true
		}
		next[i] = it
	}
	if !found {
		return model.RegisteredUser{}, ErrUserNotFound
	}
	if err := u.coll.writeLocked(ctx, next); err != nil {
		return model.RegisteredUser{}, err
	}
	u.publish(validOnly(next))
	return updated, nil
}

// Replace overwrites the whole collection, e.g. on restore.
func (u *Users) Replace(ctx context.Context, list []model.RegisteredUser) error {
	u.coll.mu.Lock()
	defer u.coll.mu.Unlock()

	if err := u.coll.saveLocked(ctx, list); err != nil {
		return err
	}
	u.mu.Lock()
	u.list = list
	u.ready = true
	u.mu.Unlock()
	return nil
}

// Load reads the stored collection, failing loudly.
func (u *Users) Load(ctx context.Context) ([]model.RegisteredUser, error) {
	return u.coll.load(ctx)
}

// Seed registers every user whose email is not taken yet and returns how
// many were added.
func (u *Users) Seed(ctx context.Context, users []model.RegisteredUser) (int, error) {
	added := 0
	for _, it := range users {
		err := u.Register(ctx, it)
		if errors.Is(err, ErrEmailTaken) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

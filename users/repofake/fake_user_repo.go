package fakeuserrepo

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/jrsteele09/taskboard/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

var (
	ErrNotFound    = errors.New("not found")
	ErrEmailExists = errors.New("email already registered")
)

type FakeUserRepo struct {
	users    map[int]*users.User
	emailIds map[string]int // lower-cased email to user id
	nextID   int
	lock     sync.RWMutex
}

func NewFakeUserRepo() users.UserRepo {
	return &FakeUserRepo{
		users:    make(map[int]*users.User),
		emailIds: make(map[string]int),
		nextID:   1,
	}
}

func (ur *FakeUserRepo) Create(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := ur.emailIds[key]; ok {
		return ErrEmailExists
	}
	user.ID = ur.nextID
	ur.nextID++
	ur.users[user.ID] = user
	ur.emailIds[key] = user.ID
	return nil
}

func (ur *FakeUserRepo) GetByEmail(email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return ur.users[id], nil
}

func (ur *FakeUserRepo) GetByID(id int) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (ur *FakeUserRepo) List() ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]*users.User, 0, len(ur.users))
	for _, v := range ur.users {
		userList = append(userList, v)
	}
	sort.Slice(userList, func(i, j int) bool {
		return userList[i].ID < userList[j].ID
	})
	return userList, nil
}

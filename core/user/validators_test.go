package user_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chibale/darasa/core"
	"github.com/chibale/darasa/core/user"
	dummydb "github.com/chibale/darasa/storage/database/dummy"
	testutil "github.com/chibale/darasa/tests"
)

func setup(t *testing.T) (*user.Service, user.Repository) {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := dummydb.NewUserRepository(db)
	return user.NewService(repo), repo
}

func newUser() user.NewUser {
	return user.NewUser{
		Name:            "Hero",
		Username:        "awesome",
		Email:           "hero@test.cd",
		Password:        "LeTsProTecT!?1",
		PasswordConfirm: "LeTsProTecT!?1",
		Roles:           []string{user.RoleStudent},
	}
}

// failedTags collects the validation tags that fired, keyed by field name.
func failedTags(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	vErrs, ok := err.(validator.ValidationErrors)
	require.Truef(t, ok, "expected validator.ValidationErrors, got %T: %v", err, err)

	tags := make(map[string]string, len(vErrs))
	for _, vErr := range vErrs {
		tags[vErr.Field()] = vErr.Tag()
	}
	return tags
}

func Test_NewUser_Validate(t *testing.T) {
	svc, repo := setup(t)

	t.Run("ok", func(t *testing.T) {
		nu := newUser()
		assert.NoError(t, nu.Validate(svc))
	})

	t.Run("username or email required", func(t *testing.T) {
		nu := newUser()
		nu.Username = ""
		nu.Email = ""
		tags := failedTags(t, nu.Validate(svc))
		assert.Equal(t, "username_or_email", tags["username"])
		assert.Equal(t, "username_or_email", tags["email"])
	})

	t.Run("username too short", func(t *testing.T) {
		nu := newUser()
		nu.Username = "lol"
		tags := failedTags(t, nu.Validate(svc))
		assert.Equal(t, "min", tags["username"])
	})

	t.Run("username charset", func(t *testing.T) {
		nu := newUser()
		nu.Username = "awe-some!"
		tags := failedTags(t, nu.Validate(svc))
		assert.Equal(t, "alphanum_", tags["username"])
	})

	t.Run("password confirmation mismatch", func(t *testing.T) {
		nu := newUser()
		nu.PasswordConfirm = "lol"
		tags := failedTags(t, nu.Validate(svc))
		assert.Equal(t, "eqfield", tags["password_confirm"])
	})

	t.Run("unknown roles", func(t *testing.T) {
		nu := newUser()
		nu.Roles = []string{"lol:"}
		tags := failedTags(t, nu.Validate(svc))
		assert.Equal(t, "allroles", tags["roles"])
	})

	t.Run("uniqueness", func(t *testing.T) {
		testutil.CreateUser(t, repo, "Taken", "takenname", "taken@test.cd", "", nil, true)

		nu := newUser()
		nu.Username = "takenname"
		nu.PasswordConfirm = nu.Password
		err := nu.Validate(svc)
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		require.Len(t, vErr.Fields, 1)
		assert.Equal(t, "username", vErr.Fields[0].Field)
	})
}

func Test_NewUser_passwordPolicy(t *testing.T) {
	svc, _ := setup(t)

	tests := []struct {
		name     string
		password string
		wantTag  string
	}{
		{name: "too short", password: "Lol!1", wantTag: "pwdminlen"},
		{name: "whitespace", password: "LeTs ProTecT!?1", wantTag: "pwdnospace"},
		{name: "all numeric", password: "92837465", wantTag: "pwdnotallnum"},
		{name: "no uppercase", password: "lets_protect1", wantTag: "pwdcplx"},
		{name: "no digit", password: "LetsProtect!?", wantTag: "pwdcplx"},
		{name: "no special", password: "LetsProtect1", wantTag: "pwdcplx"},
		{name: "similar to username", password: "Awesome1!", wantTag: "pwdtoosim"},
		{name: "ok", password: "LeTsProTecT!?1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := newUser()
			nu.Password = tt.password
			nu.PasswordConfirm = tt.password

			err := nu.Validate(svc)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			tags := failedTags(t, err)
			assert.Equal(t, tt.wantTag, tags["password"])
		})
	}
}

func Test_Service_CreateAndAuthLookups(t *testing.T) {
	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := dummydb.NewUserRepository(db)
	svc := user.NewService(repo)
	ctx := context.Background()

	nu := newUser()
	require.NoError(t, nu.Validate(svc))

	usr, err := svc.Create(ctx, nu)
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.Active())
	assert.NoError(t, usr.CheckPassword(nu.Password))

	got, err := svc.GetByUsernameOrEmail(ctx, "AweSome") // cleaned + lowered
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	got, err = svc.GetByUsernameOrEmail(ctx, usr.Email)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = svc.GetByUsernameOrEmail(ctx, "lol")
	assert.Equal(t, user.ErrNotFound, err)
}

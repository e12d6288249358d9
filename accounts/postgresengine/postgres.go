package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkdalelib/circulation-go/accounts"
	"github.com/parkdalelib/circulation-go/circulation"
)

const (
	defaultUsersTableName = "users"
	defaultRolesTableName = "user_roles"

	colUserID         = "user_id"
	colUsername       = "username"
	colPasswordHash   = "password_hash"
	colName           = "name"
	colEmail          = "email"
	colFailedAttempts = "failed_attempts"
	colLockedUntil    = "locked_until"
	colRole           = "role"

	logMsgBuildQueryFailed = "failed to build sql query"
	logMsgDBQueryFailed    = "database query execution failed"
	logMsgTxFailed         = "account transaction failed"
	logMsgUserSignedUp     = "user signed up"
	logMsgSignupRejected   = "signup rejected, username taken"
	logMsgLoginSucceeded   = "login succeeded"
	logMsgLoginRejected    = "login rejected"
	logMsgAccountLocked    = "account locked after too many failed logins"
	logAttrError           = "error"
	logAttrUsername        = "username"
	logAttrUserID          = "user_id"

	dialectPostgres = "postgres"

	uniqueViolationCode = "23505"
)

// AccountStore provides user signup, authentication with a lockout policy,
// and profile maintenance on top of a PostgreSQL database.
type AccountStore struct {
	db             *pgxpool.Pool
	usersTableName string
	rolesTableName string
	hasher         accounts.PasswordHasher
	logger         circulation.Logger
	clock          func() time.Time
}

// NewAccountStoreFromPGXPool creates a new AccountStore using a pgx pool with optional configuration.
func NewAccountStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*AccountStore, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	as := &AccountStore{
		db:             db,
		usersTableName: defaultUsersTableName,
		rolesTableName: defaultRolesTableName,
		hasher:         accounts.NewBcryptHasher(),
		clock:          time.Now,
	}

	for _, option := range options {
		if err := option(as); err != nil {
			return nil, err
		}
	}

	return as, nil
}

// Signup creates a new account with the USER role.
//
// The user row and the role row are inserted in one transaction. A duplicate
// username reports accounts.ErrUsernameTaken; validation failures are
// reported before any database access.
func (as *AccountStore) Signup(
	ctx context.Context,
	username string,
	password string,
	name string,
	email string,
) (accounts.User, error) {

	var empty accounts.User

	if err := as.validateSignup(username, password, name, email); err != nil {
		return empty, err
	}

	passwordHash, hashErr := as.hasher.Hash(password)
	if hashErr != nil {
		return empty, errors.Join(accounts.ErrSigningUpFailed, hashErr)
	}

	user := accounts.User{
		Username:     username,
		PasswordHash: passwordHash,
		Name:         name,
		Email:        email,
		Roles:        []string{accounts.RoleUser},
	}

	tx, beginErr := as.db.Begin(ctx)
	if beginErr != nil {
		return empty, errors.Join(accounts.ErrSigningUpFailed, circulation.ErrBeginningTxFailed, beginErr)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	userID, insertErr := as.insertUser(ctx, tx, user)
	if insertErr != nil {
		if isUniqueViolation(insertErr) {
			as.logInfo(logMsgSignupRejected, logAttrUsername, username)
			return empty, accounts.ErrUsernameTaken
		}

		return empty, errors.Join(accounts.ErrSigningUpFailed, insertErr)
	}
	user.ID = userID

	if roleErr := as.insertRole(ctx, tx, userID, accounts.RoleUser); roleErr != nil {
		return empty, errors.Join(accounts.ErrSigningUpFailed, roleErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		as.logError(logMsgTxFailed, commitErr)
		return empty, errors.Join(accounts.ErrSigningUpFailed, circulation.ErrCommittingTxFailed, commitErr)
	}

	as.logInfo(logMsgUserSignedUp, logAttrUsername, username, logAttrUserID, userID)

	return user, nil
}

// Authenticate verifies the credentials and returns the account on success.
//
// Failed attempts count against the lockout policy: the attempt that reaches
// accounts.MaxLoginAttempts locks the account for accounts.LockoutDuration.
// While locked, every attempt reports accounts.ErrAccountLocked without the
// password being checked. A successful login resets the counter.
func (as *AccountStore) Authenticate(ctx context.Context, username string, password string) (accounts.User, error) {
	var empty accounts.User

	user, found, getErr := as.getUserByUsername(ctx, username)
	if getErr != nil {
		return empty, errors.Join(accounts.ErrAuthenticatingFailed, getErr)
	}

	if !found {
		as.logInfo(logMsgLoginRejected, logAttrUsername, username)
		return empty, accounts.ErrInvalidCredentials
	}

	now := as.clock()

	if user.IsLocked(now) {
		as.logInfo(logMsgLoginRejected, logAttrUsername, username, logAttrError, accounts.ErrAccountLocked.Error())
		return empty, accounts.ErrAccountLocked
	}

	if compareErr := as.hasher.Compare(user.PasswordHash, password); compareErr != nil {
		if !errors.Is(compareErr, accounts.ErrPasswordMismatch) {
			return empty, errors.Join(accounts.ErrAuthenticatingFailed, compareErr)
		}

		if recordErr := as.recordFailedAttempt(ctx, user, now); recordErr != nil {
			return empty, errors.Join(accounts.ErrAuthenticatingFailed, recordErr)
		}

		as.logInfo(logMsgLoginRejected, logAttrUsername, username)

		return empty, accounts.ErrInvalidCredentials
	}

	if user.FailedAttempts > 0 || !user.LockedUntil.IsZero() {
		if resetErr := as.resetFailedAttempts(ctx, user.ID); resetErr != nil {
			return empty, errors.Join(accounts.ErrAuthenticatingFailed, resetErr)
		}

		user.FailedAttempts = 0
		user.LockedUntil = time.Time{}
	}

	roles, rolesErr := as.getRoles(ctx, user.ID)
	if rolesErr != nil {
		return empty, errors.Join(accounts.ErrAuthenticatingFailed, rolesErr)
	}
	user.Roles = roles

	as.logInfo(logMsgLoginSucceeded, logAttrUsername, username, logAttrUserID, user.ID)

	return user, nil
}

// UpdateProfile changes the display name and email address of the account.
// Returns accounts.ErrUserNotFound when the user id does not exist.
func (as *AccountStore) UpdateProfile(ctx context.Context, userID circulation.UserIDInt, name string, email string) error {
	if err := accounts.ValidateName(name); err != nil {
		return err
	}
	if err := accounts.ValidateEmail(email); err != nil {
		return err
	}

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(as.usersTableName).
		Set(goqu.Record{colName: name, colEmail: email}).
		Where(goqu.Ex{colUserID: userID})

	rowsAffected, execErr := as.execStatement(ctx, updateStmt)
	if execErr != nil {
		return errors.Join(accounts.ErrUpdatingProfileFailed, execErr)
	}

	if rowsAffected == 0 {
		return accounts.ErrUserNotFound
	}

	return nil
}

// UpdatePassword replaces the password after verifying the current one.
func (as *AccountStore) UpdatePassword(ctx context.Context, userID circulation.UserIDInt, currentPassword string, newPassword string) error {
	if err := accounts.ValidatePassword(newPassword); err != nil {
		return err
	}

	user, found, getErr := as.getUserByID(ctx, userID)
	if getErr != nil {
		return errors.Join(accounts.ErrUpdatingPasswordFailed, getErr)
	}
	if !found {
		return accounts.ErrUserNotFound
	}

	if compareErr := as.hasher.Compare(user.PasswordHash, currentPassword); compareErr != nil {
		if errors.Is(compareErr, accounts.ErrPasswordMismatch) {
			return accounts.ErrInvalidCredentials
		}

		return errors.Join(accounts.ErrUpdatingPasswordFailed, compareErr)
	}

	newHash, hashErr := as.hasher.Hash(newPassword)
	if hashErr != nil {
		return errors.Join(accounts.ErrUpdatingPasswordFailed, hashErr)
	}

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(as.usersTableName).
		Set(goqu.Record{colPasswordHash: newHash}).
		Where(goqu.Ex{colUserID: userID})

	if _, execErr := as.execStatement(ctx, updateStmt); execErr != nil {
		return errors.Join(accounts.ErrUpdatingPasswordFailed, execErr)
	}

	return nil
}

// GetUser fetches an account by id, including its roles.
// Returns accounts.ErrUserNotFound when the user id does not exist.
func (as *AccountStore) GetUser(ctx context.Context, userID circulation.UserIDInt) (accounts.User, error) {
	var empty accounts.User

	user, found, getErr := as.getUserByID(ctx, userID)
	if getErr != nil {
		return empty, getErr
	}
	if !found {
		return empty, accounts.ErrUserNotFound
	}

	roles, rolesErr := as.getRoles(ctx, userID)
	if rolesErr != nil {
		return empty, rolesErr
	}
	user.Roles = roles

	return user, nil
}

func (as *AccountStore) validateSignup(username string, password string, name string, email string) error {
	if err := accounts.ValidateUsername(username); err != nil {
		return err
	}
	if err := accounts.ValidatePassword(password); err != nil {
		return err
	}
	if err := accounts.ValidateName(name); err != nil {
		return err
	}

	return accounts.ValidateEmail(email)
}

func (as *AccountStore) insertUser(ctx context.Context, tx pgx.Tx, user accounts.User) (circulation.UserIDInt, error) {
	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(as.usersTableName).
		Rows(goqu.Record{
			colUsername:     user.Username,
			colPasswordHash: user.PasswordHash,
			colName:         user.Name,
			colEmail:        user.Email,
		}).
		Returning(colUserID)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		as.logError(logMsgBuildQueryFailed, toSQLErr)
		return 0, errors.Join(circulation.ErrBuildingQueryFailed, toSQLErr)
	}

	var userID circulation.UserIDInt
	if scanErr := tx.QueryRow(ctx, sqlQuery).Scan(&userID); scanErr != nil {
		return 0, scanErr
	}

	return userID, nil
}

func (as *AccountStore) insertRole(ctx context.Context, tx pgx.Tx, userID circulation.UserIDInt, role string) error {
	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(as.rolesTableName).
		Rows(goqu.Record{colUserID: userID, colRole: role})

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		as.logError(logMsgBuildQueryFailed, toSQLErr)
		return errors.Join(circulation.ErrBuildingQueryFailed, toSQLErr)
	}

	if _, execErr := tx.Exec(ctx, sqlQuery); execErr != nil {
		return execErr
	}

	return nil
}

func (as *AccountStore) getUserByUsername(ctx context.Context, username string) (accounts.User, bool, error) {
	return as.getUser(ctx, goqu.Ex{colUsername: username})
}

func (as *AccountStore) getUserByID(ctx context.Context, userID circulation.UserIDInt) (accounts.User, bool, error) {
	return as.getUser(ctx, goqu.Ex{colUserID: userID})
}

func (as *AccountStore) getUser(ctx context.Context, condition goqu.Ex) (accounts.User, bool, error) {
	var empty accounts.User

	selectStmt := goqu.Dialect(dialectPostgres).
		From(as.usersTableName).
		Select(colUserID, colUsername, colPasswordHash, colName, colEmail, colFailedAttempts, colLockedUntil).
		Where(condition)

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		as.logError(logMsgBuildQueryFailed, toSQLErr)
		return empty, false, errors.Join(circulation.ErrBuildingQueryFailed, toSQLErr)
	}

	var (
		user        accounts.User
		lockedUntil *time.Time
	)

	scanErr := as.db.QueryRow(ctx, sqlQuery).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Name,
		&user.Email,
		&user.FailedAttempts,
		&lockedUntil,
	)

	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return empty, false, nil
		}

		as.logError(logMsgDBQueryFailed, scanErr)

		return empty, false, scanErr
	}

	if lockedUntil != nil {
		user.LockedUntil = *lockedUntil
	}

	return user, true, nil
}

func (as *AccountStore) getRoles(ctx context.Context, userID circulation.UserIDInt) ([]string, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(as.rolesTableName).
		Select(colRole).
		Where(goqu.Ex{colUserID: userID}).
		Order(goqu.C(colRole).Asc())

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		as.logError(logMsgBuildQueryFailed, toSQLErr)
		return nil, errors.Join(circulation.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, queryErr := as.db.Query(ctx, sqlQuery)
	if queryErr != nil {
		as.logError(logMsgDBQueryFailed, queryErr)
		return nil, queryErr
	}
	defer rows.Close()

	var roles []string

	for rows.Next() {
		var role string
		if scanErr := rows.Scan(&role); scanErr != nil {
			return nil, scanErr
		}

		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// recordFailedAttempt bumps the counter and sets the lockout timestamp when
// the attempt that just failed reached the limit.
func (as *AccountStore) recordFailedAttempt(ctx context.Context, user accounts.User, now time.Time) error {
	attempts := user.FailedAttempts + 1

	record := goqu.Record{colFailedAttempts: attempts}
	if attempts >= accounts.MaxLoginAttempts {
		record[colLockedUntil] = now.Add(accounts.LockoutDuration)
		as.logInfo(logMsgAccountLocked, logAttrUsername, user.Username)
	}

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(as.usersTableName).
		Set(record).
		Where(goqu.Ex{colUserID: user.ID})

	_, execErr := as.execStatement(ctx, updateStmt)

	return execErr
}

func (as *AccountStore) resetFailedAttempts(ctx context.Context, userID circulation.UserIDInt) error {
	updateStmt := goqu.Dialect(dialectPostgres).
		Update(as.usersTableName).
		Set(goqu.Record{colFailedAttempts: 0, colLockedUntil: nil}).
		Where(goqu.Ex{colUserID: userID})

	_, execErr := as.execStatement(ctx, updateStmt)

	return execErr
}

func (as *AccountStore) execStatement(ctx context.Context, updateStmt *goqu.UpdateDataset) (int64, error) {
	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		as.logError(logMsgBuildQueryFailed, toSQLErr)
		return 0, errors.Join(circulation.ErrBuildingQueryFailed, toSQLErr)
	}

	tag, execErr := as.db.Exec(ctx, sqlQuery)
	if execErr != nil {
		as.logError(logMsgDBQueryFailed, execErr)
		return 0, execErr
	}

	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func (as *AccountStore) logInfo(msg string, args ...any) {
	if as.logger != nil {
		as.logger.Info(msg, args...)
	}
}

func (as *AccountStore) logError(msg string, err error, args ...any) {
	if as.logger != nil {
		as.logger.Error(msg, append([]any{logAttrError, err.Error()}, args...)...)
	}
}

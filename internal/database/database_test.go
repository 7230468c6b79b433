package database_test

import (
	"errors"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/papergrade/core/internal/database"
	"github.com/papergrade/core/internal/database/dbtest"
	"github.com/papergrade/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDuplicateKeyError(t *testing.T) {
	assert.False(t, database.IsDuplicateKeyError(nil))
	assert.False(t, database.IsDuplicateKeyError(errors.New("connection refused")))
	assert.True(t, database.IsDuplicateKeyError(&mysqlDriver.MySQLError{Number: 1062, Message: "x"}))
	assert.True(t, database.IsDuplicateKeyError(errors.New("UNIQUE constraint failed: question_papers.content_hash")))
}

func TestMigrateEnforcesPaperHashUniqueness(t *testing.T) {
	db := dbtest.Open(t)

	first := models.QuestionPaper{ContentHash: "abc"}
	require.NoError(t, db.Create(&first).Error)

	second := models.QuestionPaper{ContentHash: "abc"}
	err := db.Create(&second).Error
	require.Error(t, err)
	assert.True(t, database.IsDuplicateKeyError(err))
}

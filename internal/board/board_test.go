package board

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRole_Order(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleMember))
	assert.True(t, RoleAdmin.AtLeast(RoleViewer))
	assert.True(t, RoleMember.AtLeast(RoleViewer))
	assert.True(t, RoleMember.AtLeast(RoleMember))
	assert.False(t, RoleViewer.AtLeast(RoleMember))
	assert.False(t, RoleMember.AtLeast(RoleAdmin))
	assert.False(t, RoleNone.AtLeast(RoleViewer))
	assert.False(t, Role(42).AtLeast(RoleViewer))
}

func TestRole_TextEncoding(t *testing.T) {
	m := Member{UserID: "u1", Role: RoleMember}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"role":"member"`)

	var decoded Member
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, RoleMember, decoded.Role)

	y, err := yaml.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(y), "role: member")
	var fromYAML Member
	require.NoError(t, yaml.Unmarshal(y, &fromYAML))
	assert.Equal(t, RoleMember, fromYAML.Role)

	assert.Error(t, json.Unmarshal([]byte(`{"role":"owner"}`), &decoded))
}

func TestApplyDefaults(t *testing.T) {
	now := time.Now()
	b := &Board{}
	b.ApplyDefaults(now)

	require.Len(t, b.Columns, 7)
	done := b.Columns[6]
	assert.Equal(t, "Done", done.Title)
	assert.Equal(t, ColumnDone, done.Type)
	assert.Equal(t, 5, b.Columns[2].WIPLimit)
	for i, c := range b.Columns {
		assert.Equal(t, i, c.Order)
		assert.NotEmpty(t, c.ID)
	}

	assert.Len(t, b.TaskTypes, 21)
	general, ok := b.TaskTypeByName(GeneralTaskType)
	require.True(t, ok)
	assert.Equal(t, 100, general.Order)
	assert.Len(t, b.Labels, 10)
	assert.Equal(t, ViewBoard, b.Settings.DefaultView)
}

func TestApplyDefaults_KeepsSuppliedLists(t *testing.T) {
	b := &Board{
		Columns:   []Column{{ID: "c", Title: "Only", Type: ColumnTodo}},
		TaskTypes: []TaskType{{ID: "t", Name: "Custom", Active: true}},
	}
	b.ApplyDefaults(time.Now())
	assert.Len(t, b.Columns, 1)
	assert.Len(t, b.TaskTypes, 1)
	assert.Len(t, b.Labels, 10)
}

func TestBoard_Membership(t *testing.T) {
	now := time.Now()
	b := &Board{}
	assert.True(t, b.AddMember("u1", RoleAdmin, now))
	assert.False(t, b.AddMember("u1", RoleViewer, now))
	assert.Equal(t, RoleAdmin, b.RoleOf("u1"))
	assert.Len(t, b.Members, 1)

	assert.True(t, b.RemoveMember("u1"))
	assert.False(t, b.RemoveMember("u1"))
	assert.Equal(t, RoleNone, b.RoleOf("u1"))
}

func TestBoard_AcceptsTaskType(t *testing.T) {
	b := &Board{TaskTypes: []TaskType{
		{Name: "DSA Problem", Active: true},
		{Name: "Retired", Active: false},
	}}
	assert.True(t, b.AcceptsTaskType("DSA Problem"))
	assert.True(t, b.AcceptsTaskType(GeneralTaskType))
	assert.False(t, b.AcceptsTaskType("Retired"))
	assert.False(t, b.AcceptsTaskType("Unknown"))
}

func TestBoard_ColumnTypes(t *testing.T) {
	b := &Board{Columns: DefaultColumns()}
	assert.Equal(t, []ColumnType{ColumnBacklog, ColumnTodo, ColumnInProgress, ColumnReview, ColumnBlocked, ColumnDone}, b.ColumnTypes())
}

func TestNewInviteCode(t *testing.T) {
	a, b := NewInviteCode(), NewInviteCode()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^invite-[0-9a-z]{26}$`, a)
}

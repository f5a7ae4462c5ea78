package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
	"github.com/alem-hub/studygroup-stats/internal/infrastructure/persistence/memory"
)

// seedFile - TOML с группами, участниками и сессиями для memory хранилища.
//
//	[[groups]]
//	id = "g1"
//	name = "Physics"
//
//	  [[groups.members]]
//	  user_id = "alice"
//	  display_name = "Alice"
//	  streak = 4
//
//	    [[groups.members.sessions]]
//	    subject = "mechanics"
//	    minutes = 90
//	    productivity = 80
//	    started_at = 2024-05-13T10:00:00Z
type seedFile struct {
	Groups []seedGroup `toml:"groups"`
}

type seedGroup struct {
	ID      string       `toml:"id"`
	Name    string       `toml:"name"`
	Members []seedMember `toml:"members"`
}

type seedMember struct {
	UserID         string        `toml:"user_id"`
	DisplayName    string        `toml:"display_name"`
	AvatarURL      string        `toml:"avatar_url"`
	Status         string        `toml:"status"`
	JoinedAt       time.Time     `toml:"joined_at"`
	Streak         int           `toml:"streak"`
	GoalsCompleted int           `toml:"goals_completed"`
	Sessions       []seedSession `toml:"sessions"`
}

type seedSession struct {
	Subject      string    `toml:"subject"`
	Minutes      int       `toml:"minutes"`
	Productivity float64   `toml:"productivity"`
	StartedAt    time.Time `toml:"started_at"`
}

// loadSeed заполняет dir из файла и возвращает число групп.
func loadSeed(path string, dir *memory.Directory) (int, error) {
	var f seedFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return 0, fmt.Errorf("seed file %s: %w", path, err)
	}

	for _, g := range f.Groups {
		if g.ID == "" {
			return 0, fmt.Errorf("seed file %s: group without id", path)
		}
		dir.AddGroup(group.Group{ID: g.ID, Name: g.Name, CreatedAt: time.Now()})

		for i, m := range g.Members {
			status := group.MemberStatus(m.Status)
			if status == "" {
				status = group.MemberStatusActive
			}
			dir.AddMember(group.Member{
				GroupID:  g.ID,
				UserID:   m.UserID,
				Role:     "member",
				Status:   status,
				JoinedAt: m.JoinedAt,
			})
			dir.PutProfile(group.Profile{
				UserID:         m.UserID,
				DisplayName:    m.DisplayName,
				AvatarURL:      m.AvatarURL,
				CurrentStreak:  m.Streak,
				GoalsCompleted: m.GoalsCompleted,
			})
			for j, s := range m.Sessions {
				dir.AddSession(group.Session{
					ID:                fmt.Sprintf("%s-%s-%d-%d", g.ID, m.UserID, i, j),
					UserID:            m.UserID,
					Subject:           s.Subject,
					DurationMinutes:   s.Minutes,
					ProductivityScore: s.Productivity,
					StartedAt:         s.StartedAt,
				})
			}
		}
	}
	return len(f.Groups), nil
}

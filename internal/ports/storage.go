package ports

import "github.com/olgkv/bookmarkchecker/internal/domain"

// RunStorage describes the operations required by services dealing with finished runs.
type RunStorage interface {
	SaveRun(results []domain.Result) (*domain.Run, error)
	GetRun(id string) (*domain.Run, error)
}

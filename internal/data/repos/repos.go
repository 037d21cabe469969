package repos

import (
	"github.com/yumenosora/otakudb-backend/internal/data/repos/catalog"
)

type MetricRepo = catalog.MetricRepo
type RankRepo = catalog.RankRepo
type CounterRepo = catalog.CounterRepo
type RelationRepo = catalog.RelationRepo
type ReviewRepo = catalog.ReviewRepo
type DiscoveryRepo = catalog.DiscoveryRepo

type Eligibility = catalog.Eligibility
type ItemSnapshot = catalog.ItemSnapshot
type RankTableStats = catalog.RankTableStats

var ErrNotFound = catalog.ErrNotFound

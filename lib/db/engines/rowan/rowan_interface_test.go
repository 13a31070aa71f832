package rowan

import (
	"testing"

	"github.com/ValentinKolb/rKV/lib/db"
	dbtesting "github.com/ValentinKolb/rKV/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "RowanDB", func() db.KVDB {
		return NewRowanDB(nil)
	})
}

func TestSingleShard(t *testing.T) {
	dbtesting.RunKVDBTests(t, "RowanDB(1-shard)", func() db.KVDB {
		return NewRowanDB(&DBOptions{NumShards: 1})
	})
}

func Benchmark(t *testing.B) {
	dbtesting.RunKVDBBenchmarks(t, "RowanDB", func() db.KVDB {
		return NewRowanDB(nil)
	})
}

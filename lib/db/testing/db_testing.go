package testing

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/ValentinKolb/rKV/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Exists&Type", func(t *testing.T) {
			testExistsType(t, factory())
		})

		t.Run("TypeConflicts", func(t *testing.T) {
			testTypeConflicts(t, factory())
		})

		t.Run("ListOps", func(t *testing.T) {
			testListOps(t, factory())
		})

		t.Run("SetOps", func(t *testing.T) {
			testSetOps(t, factory())
		})

		t.Run("KeysPattern", func(t *testing.T) {
			testKeysPattern(t, factory())
		})

		t.Run("Len&Flush", func(t *testing.T) {
			testLenFlush(t, factory())
		})

		t.Run("DumpRestore", func(t *testing.T) {
			testDumpRestore(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("CollisionHandling", func(t *testing.T) {
			testCollisionHandling(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureStrings)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1)

	result, exists, err := database.Get(testKey)
	if err != nil {
		t.Errorf("Unexpected error from Get: %v", err)
	}
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2)

	result, exists, _ = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists, _ = database.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// the stored value must also be isolated from the caller's slice
	mutableValue := []byte("mutable-value")
	database.Set(testKey, mutableValue)
	mutableValue[0] = 'X'

	result, _, _ = database.Get(testKey)
	if bytes.Equal(result, mutableValue) {
		t.Errorf("Set should store a copy, not a reference to the caller's value")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureStrings)

	testKey := "delete-test-key"
	testValue := []byte("delete-test-value")

	database.Set(testKey, testValue)

	_, exists, _ := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !database.Delete(testKey) {
		t.Errorf("Expected Delete to return true for existing key")
	}

	_, exists, _ = database.Get(testKey)
	if exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	if database.Delete("nonexistent-key") {
		t.Errorf("Expected Delete to return false for nonexistent key")
	}
}

func testExistsType(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureStrings)
	requireFeature(t, database, db.FeatureLists)
	requireFeature(t, database, db.FeatureSets)

	if database.Exists("nonexistent-key") {
		t.Errorf("Expected Exists to return false for nonexistent key")
	}

	kind, found := database.Type("nonexistent-key")
	if found || kind != db.KindNone {
		t.Errorf("Expected Type of nonexistent key to be (none, false), got (%s, %v)", kind, found)
	}

	database.Set("string-key", []byte("value"))
	if _, err := database.LPush("list-key", []byte("a")); err != nil {
		t.Fatalf("Unexpected error from LPush: %v", err)
	}
	if _, err := database.SAdd("set-key", []byte("a")); err != nil {
		t.Fatalf("Unexpected error from SAdd: %v", err)
	}

	for key, want := range map[string]db.ValueKind{
		"string-key": db.KindString,
		"list-key":   db.KindList,
		"set-key":    db.KindSet,
	} {
		if !database.Exists(key) {
			t.Errorf("Expected key %s to exist", key)
		}
		kind, found := database.Type(key)
		if !found {
			t.Errorf("Expected Type to find key %s", key)
		}
		if kind != want {
			t.Errorf("Expected Type of %s to be %s, got %s", key, want, kind)
		}
	}
}

func testTypeConflicts(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureStrings)
	requireFeature(t, database, db.FeatureLists)
	requireFeature(t, database, db.FeatureSets)

	database.Set("string-key", []byte("value"))
	if _, err := database.LPush("list-key", []byte("a")); err != nil {
		t.Fatalf("Unexpected error from LPush: %v", err)
	}
	if _, err := database.SAdd("set-key", []byte("a")); err != nil {
		t.Fatalf("Unexpected error from SAdd: %v", err)
	}

	// every cross-variant operation must fail with a WrongType error
	if _, _, err := database.Get("list-key"); !db.IsWrongType(err) {
		t.Errorf("Expected WrongType error from Get on a list, got %v", err)
	}
	if _, _, err := database.Get("set-key"); !db.IsWrongType(err) {
		t.Errorf("Expected WrongType error from Get on a set, got %v", err)
	}
	if _, err := database.LPush("string-key", []byte("a")); !db.IsWrongType(err) {
		t.Errorf("Expected WrongType error from LPush on a string, got %v", err)
	}
	if _, err := database.RPush("set-key", []byte("a")); !db.IsWrongType(err) {
		t.Errorf("Expected WrongType error from RPush on a set, got %v", err)
	}
	if _, _, err := database.LPop("string-key"); !db.IsWrongType(err) {
		t.Errorf("Expected WrongType error from LPop on a string, got %v", err)
	}
	if _, _, err := database.RPop("set-key"); !db.IsWrongType(err) {
		t.Errorf("Expected WrongType error from RPop on a set, got %v", err)
	}
	if _, err := database.SAdd("list-key", []byte("a")); !db.IsWrongType(err) {
		t.Errorf("Expected WrongType error from SAdd on a list, got %v", err)
	}
	if _, err := database.SRem("string-key", []byte("a")); !db.IsWrongType(err) {
		t.Errorf("Expected WrongType error from SRem on a string, got %v", err)
	}
	if _, err := database.SMembers("list-key"); !db.IsWrongType(err) {
		t.Errorf("Expected WrongType error from SMembers on a list, got %v", err)
	}

	// a failed operation must leave the value untouched
	value, exists, err := database.Get("string-key")
	if err != nil || !exists || !bytes.Equal(value, []byte("value")) {
		t.Errorf("String value changed after failed operations: %s (exists=%v, err=%v)", value, exists, err)
	}

	// Set and Delete work on any variant
	database.Set("list-key", []byte("now-a-string"))
	kind, _ := database.Type("list-key")
	if kind != db.KindString {
		t.Errorf("Expected Set to replace the list, got kind %s", kind)
	}

	if !database.Delete("set-key") {
		t.Errorf("Expected Delete to remove the set key")
	}
}

func testListOps(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureLists)

	listKey := "list-key"

	// LPush prepends one by one, the last value ends up leftmost
	newLen, err := database.LPush(listKey, []byte("a"), []byte("b"), []byte("c"))
	if err != nil {
		t.Fatalf("Unexpected error from LPush: %v", err)
	}
	if newLen != 3 {
		t.Errorf("Expected list length 3 after LPush, got %d", newLen)
	}

	newLen, err = database.RPush(listKey, []byte("x"), []byte("y"))
	if err != nil {
		t.Fatalf("Unexpected error from RPush: %v", err)
	}
	if newLen != 5 {
		t.Errorf("Expected list length 5 after RPush, got %d", newLen)
	}

	// full order is now: c b a x y
	expectOrder := [][]byte{[]byte("c"), []byte("b"), []byte("a"), []byte("x"), []byte("y")}
	for i, want := range expectOrder {
		value, found, err := database.LPop(listKey)
		if err != nil {
			t.Fatalf("Unexpected error from LPop: %v", err)
		}
		if !found {
			t.Fatalf("Expected element %d to be found", i)
		}
		if !bytes.Equal(value, want) {
			t.Errorf("Expected element %d to be %s, got %s", i, want, value)
		}
	}

	// the drained list must remove the key entirely
	if database.Exists(listKey) {
		t.Errorf("Expected key %s to be removed after the list drained", listKey)
	}
	kind, found := database.Type(listKey)
	if found || kind != db.KindNone {
		t.Errorf("Expected Type of drained list to be (none, false), got (%s, %v)", kind, found)
	}

	// pops on an absent key report found=false without error
	_, found, err = database.LPop(listKey)
	if err != nil || found {
		t.Errorf("Expected LPop on absent key to return (false, nil), got (%v, %v)", found, err)
	}
	_, found, err = database.RPop(listKey)
	if err != nil || found {
		t.Errorf("Expected RPop on absent key to return (false, nil), got (%v, %v)", found, err)
	}

	// RPop takes from the right
	if _, err := database.RPush(listKey, []byte("1"), []byte("2"), []byte("3")); err != nil {
		t.Fatalf("Unexpected error from RPush: %v", err)
	}
	value, found, err := database.RPop(listKey)
	if err != nil || !found {
		t.Fatalf("Unexpected RPop result: found=%v err=%v", found, err)
	}
	if !bytes.Equal(value, []byte("3")) {
		t.Errorf("Expected RPop to return 3, got %s", value)
	}
}

func testSetOps(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSets)

	setKey := "set-key"

	added, err := database.SAdd(setKey, []byte("a"), []byte("b"), []byte("a"))
	if err != nil {
		t.Fatalf("Unexpected error from SAdd: %v", err)
	}
	if added != 2 {
		t.Errorf("Expected 2 new members, got %d", added)
	}

	added, err = database.SAdd(setKey, []byte("a"), []byte("c"))
	if err != nil {
		t.Fatalf("Unexpected error from SAdd: %v", err)
	}
	if added != 1 {
		t.Errorf("Expected 1 new member, got %d", added)
	}

	members, err := database.SMembers(setKey)
	if err != nil {
		t.Fatalf("Unexpected error from SMembers: %v", err)
	}

	got := make([]string, 0, len(members))
	for _, member := range members {
		got = append(got, string(member))
	}
	sort.Strings(got)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Expected members %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected members %v, got %v", want, got)
			break
		}
	}

	removed, err := database.SRem(setKey, []byte("a"), []byte("missing"))
	if err != nil {
		t.Fatalf("Unexpected error from SRem: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed member, got %d", removed)
	}

	// draining the set removes the key entirely
	removed, err = database.SRem(setKey, []byte("b"), []byte("c"))
	if err != nil {
		t.Fatalf("Unexpected error from SRem: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 removed members, got %d", removed)
	}
	if database.Exists(setKey) {
		t.Errorf("Expected key %s to be removed after the set drained", setKey)
	}

	// operations on an absent key
	removed, err = database.SRem(setKey, []byte("a"))
	if err != nil || removed != 0 {
		t.Errorf("Expected SRem on absent key to return (0, nil), got (%d, %v)", removed, err)
	}
	members, err = database.SMembers(setKey)
	if err != nil {
		t.Fatalf("Unexpected error from SMembers on absent key: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("Expected no members for absent key, got %d", len(members))
	}
	if database.Exists(setKey) {
		t.Errorf("SMembers on an absent key must not create it")
	}
}

func testKeysPattern(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureStrings)
	requireFeature(t, database, db.FeatureScan)

	database.Set("user:1", []byte("alice"))
	database.Set("user:2", []byte("bob"))
	database.Set("session:1", []byte("token"))

	matchCount := func(pattern string) int {
		return len(database.Keys(pattern))
	}

	if n := matchCount("*"); n != 3 {
		t.Errorf("Expected 3 keys for pattern *, got %d", n)
	}
	if n := matchCount("user:*"); n != 2 {
		t.Errorf("Expected 2 keys for pattern user:*, got %d", n)
	}
	if n := matchCount("user:?"); n != 2 {
		t.Errorf("Expected 2 keys for pattern user:?, got %d", n)
	}
	if n := matchCount("session:1"); n != 1 {
		t.Errorf("Expected 1 key for exact pattern, got %d", n)
	}
	if n := matchCount("missing:*"); n != 0 {
		t.Errorf("Expected 0 keys for non-matching pattern, got %d", n)
	}
}

func testLenFlush(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureStrings)
	requireFeature(t, database, db.FeatureLists)
	requireFeature(t, database, db.FeatureSets)

	if database.Len() != 0 {
		t.Errorf("Expected empty database, got %d keys", database.Len())
	}

	database.Set("string-key", []byte("value"))
	if _, err := database.LPush("list-key", []byte("a")); err != nil {
		t.Fatalf("Unexpected error from LPush: %v", err)
	}
	if _, err := database.SAdd("set-key", []byte("a")); err != nil {
		t.Fatalf("Unexpected error from SAdd: %v", err)
	}

	if database.Len() != 3 {
		t.Errorf("Expected 3 keys, got %d", database.Len())
	}

	database.Flush()

	if database.Len() != 0 {
		t.Errorf("Expected 0 keys after Flush, got %d", database.Len())
	}
	if database.Exists("string-key") {
		t.Errorf("Expected no keys to survive Flush")
	}
}

func testDumpRestore(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureStrings)
	requireFeature(t, database, db.FeatureLists)
	requireFeature(t, database, db.FeatureSets)
	requireFeature(t, database, db.FeatureDump)

	numStrings := 100
	for i := 0; i < numStrings; i++ {
		database.Set(fmt.Sprintf("dump-key-%d", i), []byte(fmt.Sprintf("dump-value-%d", i)))
	}
	if _, err := database.RPush("dump-list", []byte("a"), []byte("b"), []byte("c")); err != nil {
		t.Fatalf("Unexpected error from RPush: %v", err)
	}
	if _, err := database.SAdd("dump-set", []byte("x"), []byte("y")); err != nil {
		t.Fatalf("Unexpected error from SAdd: %v", err)
	}

	entries := database.Dump()
	if len(entries) != numStrings+2 {
		t.Errorf("Expected %d entries in dump, got %d", numStrings+2, len(entries))
	}

	if err := database2.Restore(entries); err != nil {
		t.Fatalf("Unexpected error during Restore: %v", err)
	}

	for i := 0; i < numStrings; i++ {
		key := fmt.Sprintf("dump-key-%d", i)
		expectedValue := []byte(fmt.Sprintf("dump-value-%d", i))

		actualValue, exists, err := database2.Get(key)
		if err != nil || !exists {
			t.Errorf("Key %s not found after Restore (err=%v)", key, err)
			continue
		}
		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	// list order must survive the round trip
	for _, want := range []string{"a", "b", "c"} {
		value, found, err := database2.LPop("dump-list")
		if err != nil || !found {
			t.Fatalf("Expected list element %s after Restore (found=%v, err=%v)", want, found, err)
		}
		if string(value) != want {
			t.Errorf("Expected list element %s, got %s", want, value)
		}
	}

	members, err := database2.SMembers("dump-set")
	if err != nil || len(members) != 2 {
		t.Errorf("Expected 2 set members after Restore, got %d (err=%v)", len(members), err)
	}

	// restore replaces everything that was there before
	database2.Set("stale-key", []byte("stale"))
	if err := database2.Restore(entries); err != nil {
		t.Fatalf("Unexpected error during second Restore: %v", err)
	}
	if database2.Exists("stale-key") {
		t.Errorf("Expected Restore to remove pre-existing keys")
	}

	// entries with empty collections must be rejected
	bad := []db.Entry{{Key: "bad-list", Kind: db.KindList, Items: [][]byte{}}}
	if err := database2.Restore(bad); err == nil {
		t.Errorf("Expected Restore to reject an empty list entry")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureStrings)

	emptyKey := ""
	emptyKeyValue := []byte("value for empty key")

	database.Set(emptyKey, emptyKeyValue)

	result, exists, _ := database.Get(emptyKey)
	if !exists {
		t.Errorf("Empty key not found after Set")
	} else if !bytes.Equal(result, emptyKeyValue) {
		t.Errorf("Value mismatch for empty key")
	}

	emptyValueKey := "empty-value-key"
	var emptyValue []byte

	database.Set(emptyValueKey, emptyValue)

	result, exists, _ = database.Get(emptyValueKey)
	if !exists {
		t.Errorf("Key for empty value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Empty value resulted in non-empty value: %v", result)
	}

	// empty byte strings are legal list elements and set members
	if database.SupportsFeature(db.FeatureLists) {
		if _, err := database.RPush("empty-elem-list", []byte{}); err != nil {
			t.Errorf("Unexpected error pushing empty element: %v", err)
		}
		value, found, err := database.LPop("empty-elem-list")
		if err != nil || !found {
			t.Errorf("Expected to pop empty element (found=%v, err=%v)", found, err)
		} else if len(value) != 0 {
			t.Errorf("Expected empty element, got %v", value)
		}
	}

	if !t.Failed() {

		largeKey := string(make([]byte, 1000))
		largeKeyValue := []byte("value for large key")

		database.Set(largeKey, largeKeyValue)

		result, exists, _ = database.Get(largeKey)
		if !exists {
			t.Errorf("Large key not found after Set")
		} else if !bytes.Equal(result, largeKeyValue) {
			t.Errorf("Value mismatch for large key")
		}

		largeValueKey := "large-value-key"
		largeValue := make([]byte, 16*1024*1024)

		for i := range largeValue {
			largeValue[i] = byte(i % 256)
		}

		database.Set(largeValueKey, largeValue)

		result, exists, _ = database.Get(largeValueKey)
		if !exists {
			t.Errorf("Key for large value not found after Set")
		} else if !bytes.Equal(result, largeValue) {

			headMismatch := !bytes.Equal(result[:10], largeValue[:10])
			tailMismatch := !bytes.Equal(result[len(result)-10:], largeValue[len(largeValue)-10:])
			if headMismatch || tailMismatch || len(result) != len(largeValue) {
				t.Errorf("Large value mismatch: Head mismatch=%v, Tail mismatch=%v, Size mismatch=%v",
					headMismatch, tailMismatch, len(result) != len(largeValue))
			}
		}
	}
}

func testCollisionHandling(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureStrings)

	prefix := "collision-test-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		value := []byte(fmt.Sprintf("value-%d", i))

		database.Set(key, value)
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		expectedValue := []byte(fmt.Sprintf("value-%d", i))

		actualValue, exists, _ := database.Get(key)
		if !exists {
			t.Errorf("Key %s not found", key)
			continue
		}

		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value for key %s does not match: expected %s, got %s",
				key, expectedValue, actualValue)
		}
	}

	for i := 0; i < numKeys; i += 2 {
		key := fmt.Sprintf("%s%d", prefix, i)
		database.Delete(key)
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, exists, _ := database.Get(key)

		if i%2 == 0 {
			if exists {
				t.Errorf("Key %s should be deleted", key)
			}
		} else {
			if !exists {
				t.Errorf("Key %s should still exist", key)
			}
		}
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureStrings)
	requireFeature(t, database, db.FeatureLists)
	requireFeature(t, database, db.FeatureSets)

	numWorkers := 8
	opsPerWorker := 2_000

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	// each worker owns a disjoint key range for strings, plus all workers
	// share one list and one set to exercise contended collection updates
	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			for i := 0; i < opsPerWorker; i++ {
				switch i % 10 {
				case 0, 1, 2, 3, 4:
					key := fmt.Sprintf("worker-%d-key-%d", workerId, i)
					database.Set(key, []byte(fmt.Sprintf("value-%d", i)))
				case 5, 6:
					key := fmt.Sprintf("worker-%d-key-%d", workerId, i-5)
					database.Get(key)
				case 7:
					if _, err := database.RPush("shared-list", []byte(fmt.Sprintf("%d-%d", workerId, i))); err != nil {
						t.Errorf("Unexpected error from RPush: %v", err)
						return
					}
				case 8:
					if _, err := database.SAdd("shared-set", []byte(fmt.Sprintf("%d-%d", workerId, i))); err != nil {
						t.Errorf("Unexpected error from SAdd: %v", err)
						return
					}
				case 9:
					key := fmt.Sprintf("worker-%d-key-%d", workerId, i-9)
					database.Delete(key)
				}
			}
		}(w)
	}

	wg.Wait()

	// every pushed element must be accounted for
	expectedListLen := numWorkers * opsPerWorker / 10
	popped := 0
	for {
		_, found, err := database.LPop("shared-list")
		if err != nil {
			t.Fatalf("Unexpected error from LPop: %v", err)
		}
		if !found {
			break
		}
		popped++
	}
	if popped != expectedListLen {
		t.Errorf("Expected %d list elements, got %d", expectedListLen, popped)
	}

	// the drained list must be gone
	if database.Exists("shared-list") {
		t.Errorf("Expected shared-list to be removed after draining")
	}

	members, err := database.SMembers("shared-set")
	if err != nil {
		t.Fatalf("Unexpected error from SMembers: %v", err)
	}
	expectedMembers := numWorkers * opsPerWorker / 10
	if len(members) != expectedMembers {
		t.Errorf("Expected %d set members, got %d", expectedMembers, len(members))
	}
}

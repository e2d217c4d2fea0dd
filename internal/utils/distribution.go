package utils

import "hash/fnv"

// ShardFor выбирает шард для ключа
// key - идентификатор загрузки
// shardCount - количество шардов (по умолчанию 1)
func ShardFor(key string, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}

	h := fnv.New32a()
	h.Write([]byte(key))

	return int(h.Sum32() % uint32(shardCount))
}

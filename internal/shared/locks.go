package shared

// ReplenishmentLockKey is the redis lease guarding a scheduler scan.
const ReplenishmentLockKey = "odyssey:replenishment:scan"

package cache

var SetIfCurrentHash = setIfCurrent.Hash()

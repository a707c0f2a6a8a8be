// Package peerstore 实现节点目录
//
// 节点目录按 NodeID 保存已知节点的公钥、地址及拨号统计、能力位和标志位，
// 由拨号器读取地址、记录每个地址的成败，由监听器在入站握手成功后写入。
//
// # 后端
//
//   - MemoryDirectory: 进程内 map，适合测试和钱包等短生命周期进程
//   - BadgerDirectory: BadgerDB 持久化，前置 LRU 缓存减少解码开销
//
// 两种后端共享同一套合并规则（见 merge），对外返回的都是副本。
//
// # 使用示例
//
//	dir, err := peerstore.NewBadgerDirectory(peerstore.BadgerOptions{Path: "/data/peers"})
//	if err != nil {
//	    return err
//	}
//	defer dir.Close()
//
//	_ = dir.Upsert(ctx, types.NewPeer(pub, addrs, types.FeaturesCommunicationNode))
//	peer, err := dir.Find(ctx, nodeID)
//	if errors.Is(err, peerstore.ErrNotFound) { ... }
package peerstore

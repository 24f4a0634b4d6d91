// Package crawlers 提供题库分页爬取与人机验证处理
//
// # 概述
//
// crawlers包从种子地址开始逐页获取题目列表,遇到人机验证时切换到浏览器会话,
// 借助验证码识别服务完成图片验证后继续提取。整个流程是顺序执行的,同一时刻只有一个页面在处理。
//
// # 核心组件
//
// ## Router (路由器)
//
// 为每个页面生成 PageRequest,支持三种获取路径:
//   - direct: 直连目标地址
//   - cached: 先用HEAD探测缓存镜像,可用时经代理获取镜像,否则直连
//   - proxied: 所有请求经抓取代理转发
//
//	router, err := NewRouter(models.RouteCached, proxyCfg, fetcher)
//	req, err := router.Resolve(ctx, "https://example.com/exam/1", 1)
//
// ## PageFetcher (页面获取器)
//
// 基于Colly的静态获取器,每次请求使用独立的Collector。
// 非2xx响应同样返回响应体,gzip/deflate/br内容自动解压。
//
// ## QuestionExtractor (题目提取器)
//
// 用XPath从页面中提取题目卡片和"下一页"链接,链接按当前页地址解析为绝对地址。
//
// ## ChallengeResolver (人机验证处理器)
//
// 点击"我不是机器人"入口后,循环处理图片验证直到验证框消失:
//
//	result, err := resolver.Resolve(ctx, session)
//
// 验证框元素缺失时刷新页面重试,刷新次数达到 RetryPerPage 后返回 BypassError。
//
// ## CrawlDriver (翻页驱动)
//
// 串联以上组件,处理单个种子的全部页面:
//
//	driver := NewCrawlDriver(router, fetcher, resolver, openSession, sink,
//	    WithCapacityGate(guard), WithPageHook(onPage))
//	reason, err := driver.Crawl(ctx, models.NewCrawlState(seed, pageLimit))
//
// 停止原因见 models.StopReason。浏览器会话只在出现人机验证时打开,并在该页处理结束时关闭。
//
// ## ResourceGuard (资源闸门)
//
// 启动浏览器前检查可用内存和CPU负载,资源紧张时等待,检查次数用尽后仍放行。
//
// # 错误处理
//
//   - 获取失败: 包装为 ErrFetchFailed,停止原因 fetch_failed
//   - 验证失败: models.BypassError,停止原因 captcha_blocked
//   - context取消: 停止原因 cancelled
package crawlers
